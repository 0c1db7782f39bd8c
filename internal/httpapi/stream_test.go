package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spaq.app/internal/stream"
)

// The activity feed must survive the full middleware chain: the logging and
// metrics wrappers have to keep exposing http.Flusher or the handler bails
// out before writing a single frame.
func TestActivityStreamThroughMiddleware(t *testing.T) {
	api := newTestAPI(t, 1000)
	h := api.Handler()
	c := &apiClient{t: t, handler: h}
	sess := c.register("lee@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events/stream", nil).WithContext(ctx)
	req.RemoteAddr = "203.0.113.7:4242"
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(rec, req)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for api.activity.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	api.activity.Publish(stream.Activity{
		TeamID:    sess.Team.ID,
		Kind:      "event.created",
		RecordID:  "evt-sse",
		Title:     "Adopt server-sent events",
		ActorID:   sess.User.ID,
		Timestamp: time.Now().UTC(),
	})

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	if rec.Code != http.StatusOK {
		t.Fatalf("stream returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: activity") {
		t.Fatalf("no activity frame in body %q", body)
	}
	if !strings.Contains(body, "evt-sse") {
		t.Fatalf("published record missing from body %q", body)
	}
}

func TestActivityStreamRequiresToken(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}

	rec := c.do(http.MethodGet, "/api/events/stream", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated stream returned %d, want 401", rec.Code)
	}
}
