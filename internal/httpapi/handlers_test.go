package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"spaq.app/internal/agent"
	"spaq.app/internal/auth"
	"spaq.app/internal/decisions"
	"spaq.app/internal/ratelimit"
	"spaq.app/internal/stream"
)

func newTestAPI(t *testing.T, rateMax int) *API {
	t.Helper()
	svc, err := auth.NewService(auth.NewInMemory(), "access-secret", "refresh-secret")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	api := New(Config{
		Version:     "test",
		Auth:        svc,
		Decisions:   decisions.NewInMemory(),
		Recommender: agent.NewStatic(),
		Activity:    stream.New(),
		Limiter:     ratelimit.New(ratelimit.NewMemory(time.Minute), rateMax),
	})
	t.Cleanup(api.Close)
	return api
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func (c *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.7:4242"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func (c *apiClient) decode(rec *httptest.ResponseRecorder, out any) {
	c.t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		c.t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

type respEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func (c *apiClient) envelope(rec *httptest.ResponseRecorder) respEnvelope {
	c.t.Helper()
	var env respEnvelope
	c.decode(rec, &env)
	return env
}

func (c *apiClient) register(email string) sessionResponse {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/auth/register", registerRequest{
		Email:            email,
		Password:         "long-enough-pw",
		Name:             "Rita",
		OrganizationName: "Acme",
		TeamName:         "Platform",
	})
	if rec.Code != http.StatusCreated {
		c.t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	env := c.envelope(rec)
	var sess sessionResponse
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		c.t.Fatalf("decode session: %v", err)
	}
	return sess
}

func TestRegisterAndMe(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}

	sess := c.register("rita@example.com")
	if sess.AccessToken == "" || sess.RefreshToken == "" {
		t.Fatal("expected both tokens in register response")
	}
	if sess.User.Role != auth.RoleAdmin {
		t.Fatalf("founding user role = %q, want ADMIN", sess.User.Role)
	}

	c.token = sess.AccessToken
	rec := c.do(http.MethodGet, "/api/auth/me", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me returned %d: %s", rec.Code, rec.Body.String())
	}
	env := c.envelope(rec)
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	var me struct {
		User meResponse `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.User.User == nil || me.User.Email != "rita@example.com" {
		t.Fatalf("me user = %+v", me.User.User)
	}
	if me.User.Team == nil || me.User.Team.ID != sess.Team.ID {
		t.Fatal("me did not nest the registered team inside user")
	}
	if me.User.Organization == nil || me.User.Organization.ID != sess.Organization.ID {
		t.Fatal("me did not nest the organization inside user")
	}

	// team and organization live inside the user object, not beside it
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &shape); err != nil {
		t.Fatalf("decode shape: %v", err)
	}
	if _, ok := shape["team"]; ok {
		t.Fatal("team must not appear as a sibling of user")
	}
}

func TestProtectedRoutesRejectBadTokens(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}

	cases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.token = tc.token
			rec := c.do(http.MethodGet, "/api/events", nil)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			env := c.envelope(rec)
			if env.Success || env.Error == nil || env.Error.Message == "" {
				t.Fatalf("want error envelope, got %s", rec.Body.String())
			}
			if rec.Header().Get("WWW-Authenticate") == "" {
				t.Fatal("missing WWW-Authenticate header")
			}
		})
	}
}

func TestLoginAndRefreshFlow(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}
	c.register("kai@example.com")

	rec := c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "KAI@example.com", Password: "long-enough-pw"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}
	env := c.envelope(rec)
	var sess sessionResponse
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	rec = c.do(http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: sess.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", rec.Code, rec.Body.String())
	}
	env = c.envelope(rec)
	var out struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode refresh: %v", err)
	}
	c.token = out.AccessToken
	if rec := c.do(http.MethodGet, "/api/auth/me", nil); rec.Code != http.StatusOK {
		t.Fatalf("refreshed token rejected: %d", rec.Code)
	}

	// wrong credentials
	rec = c.do(http.MethodPost, "/api/auth/login", loginRequest{Email: "kai@example.com", Password: "wrong-password"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login returned %d, want 401", rec.Code)
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}
	sess := c.register("mo@example.com")
	c.token = sess.AccessToken

	rec := c.do(http.MethodPost, "/api/auth/logout", refreshRequest{RefreshToken: sess.RefreshToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", rec.Code, rec.Body.String())
	}
	// repeat logout is still OK
	if rec := c.do(http.MethodPost, "/api/auth/logout", refreshRequest{RefreshToken: sess.RefreshToken}); rec.Code != http.StatusOK {
		t.Fatalf("second logout returned %d", rec.Code)
	}

	rec = c.do(http.MethodPost, "/api/auth/refresh", refreshRequest{RefreshToken: sess.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked refresh returned %d, want 401", rec.Code)
	}
}

func TestEventsAndChainsAreTeamScoped(t *testing.T) {
	api := newTestAPI(t, 1000)
	a := &apiClient{t: t, handler: api.Handler()}
	b := &apiClient{t: t, handler: api.Handler()}

	sessA := a.register("alice@one.example")
	sessB := b.register("bob@two.example")
	a.token = sessA.AccessToken
	b.token = sessB.AccessToken

	rec := a.do(http.MethodPost, "/api/events", createEventRequest{
		Title:   "Adopt Postgres",
		Context: "Need relational joins",
		Tags:    []string{"infra"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create event returned %d: %s", rec.Code, rec.Body.String())
	}
	env := a.envelope(rec)
	var created struct {
		Event decisions.Event `json:"event"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if created.Event.DecidedBy != sessA.User.ID {
		t.Fatalf("decidedBy defaulted to %q, want the caller", created.Event.DecidedBy)
	}

	// owner sees it
	if rec := a.do(http.MethodGet, "/api/events/"+created.Event.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner read returned %d", rec.Code)
	}
	// other team gets 404, not 403
	if rec := b.do(http.MethodGet, "/api/events/"+created.Event.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("cross-team read returned %d, want 404", rec.Code)
	}

	// other team's list is empty
	rec = b.do(http.MethodGet, "/api/events", nil)
	env = b.envelope(rec)
	var listed struct {
		Events []decisions.Event `json:"events"`
	}
	if err := json.Unmarshal(env.Data, &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed.Events) != 0 {
		t.Fatalf("cross-team list returned %d events", len(listed.Events))
	}
}

func TestChainLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}
	sess := c.register("eve@example.com")
	c.token = sess.AccessToken

	rec := c.do(http.MethodPost, "/api/chains", chainRequest{
		Name:     "Migration plan",
		Document: json.RawMessage(`{"steps":["freeze","copy","cutover"]}`),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create chain returned %d: %s", rec.Code, rec.Body.String())
	}
	env := c.envelope(rec)
	var created struct {
		Chain decisions.Chain `json:"chain"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode chain: %v", err)
	}

	rec = c.do(http.MethodPut, "/api/chains/"+created.Chain.ID, chainRequest{Name: "Migration plan v2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update chain returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = c.do(http.MethodDelete, "/api/chains/"+created.Chain.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete chain returned %d", rec.Code)
	}
	if rec := c.do(http.MethodGet, "/api/chains/"+created.Chain.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("deleted chain read returned %d, want 404", rec.Code)
	}
}

func TestAgentAskAndAnalytics(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}
	sess := c.register("noa@example.com")
	c.token = sess.AccessToken

	c.do(http.MethodPost, "/api/events", createEventRequest{Title: "Use Kafka", Context: "event transport"})

	rec := c.do(http.MethodPost, "/api/agent/ask", askRequest{Query: "kafka"})
	if rec.Code != http.StatusOK {
		t.Fatalf("agent ask returned %d: %s", rec.Code, rec.Body.String())
	}
	env := c.envelope(rec)
	var ans agent.Answer
	if err := json.Unmarshal(env.Data, &ans); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if len(ans.Matches) != 1 {
		t.Fatalf("got %d matches, want the kafka event", len(ans.Matches))
	}
	if ans.Relevance < 0.5 {
		t.Fatalf("relevance = %v, want >= 0.5 on a match", ans.Relevance)
	}
	if len(ans.Suggestions) == 0 {
		t.Fatal("expected follow-up suggestions")
	}

	if rec := c.do(http.MethodPost, "/api/agent/ask", askRequest{Query: "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query returned %d, want 400", rec.Code)
	}

	rec = c.do(http.MethodGet, "/api/analytics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics returned %d: %s", rec.Code, rec.Body.String())
	}
	env = c.envelope(rec)
	var stats struct {
		Events       int     `json:"events"`
		Chains       int     `json:"chains"`
		AvgTimeSaved float64 `json:"avg_time_saved_hours"`
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode analytics: %v", err)
	}
	if stats.Events != 1 || stats.AvgTimeSaved != 4.2 {
		t.Fatalf("analytics = %+v", stats)
	}
}

func TestHealthEndpoints(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := c.do(http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
		if env := c.envelope(rec); !env.Success {
			t.Fatalf("%s envelope not successful", path)
		}
	}

	rec := c.do(http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown protected path returned %d, want 401 before routing", rec.Code)
	}
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	api := newTestAPI(t, 1000)
	c := &apiClient{t: t, handler: api.Handler()}
	c.register("dup@example.com")

	rec := c.do(http.MethodPost, "/api/auth/register", registerRequest{
		Email:            "DUP@example.com",
		Password:         "long-enough-pw",
		OrganizationName: "Other",
		TeamName:         "Other",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register returned %d, want 400", rec.Code)
	}
	env := c.envelope(rec)
	if env.Error == nil || !strings.Contains(env.Error.Message, "already registered") {
		t.Fatalf("unexpected error: %s", rec.Body.String())
	}
}

func TestAdmissionLimiterOverHTTP(t *testing.T) {
	api := newTestAPI(t, 2)
	c := &apiClient{t: t, handler: api.Handler()}

	for i := 0; i < 2; i++ {
		rec := c.do(http.MethodGet, "/healthz", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d returned %d", i+1, rec.Code)
		}
		want := fmt.Sprintf("%d", 2-(i+1))
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != want {
			t.Fatalf("remaining after request %d = %q, want %q", i+1, got, want)
		}
	}

	rec := c.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request returned %d, want 429", rec.Code)
	}
	env := c.envelope(rec)
	if env.Success || env.Error == nil || env.Error.Message == "" {
		t.Fatalf("want error envelope, got %s", rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	if _, err := time.Parse(time.RFC3339, rec.Header().Get("X-RateLimit-Reset")); err != nil {
		t.Fatalf("X-RateLimit-Reset not RFC3339: %v", err)
	}

	// a different client IP has its own window
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "198.51.100.9:1000"
	other := httptest.NewRecorder()
	api.Handler().ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("other client returned %d, want 200", other.Code)
	}
}
