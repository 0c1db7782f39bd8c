package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"spaq.app/internal/auth"
)

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer lower-scheme", "lower-scheme", true},
		{"Bearer   padded  ", "padded", true},
		{"Basic dXNlcjpwdw==", "", false},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, ok := bearerToken(req)
		if ok != tc.ok || got != tc.want {
			t.Errorf("bearerToken(%q) = (%q, %v), want (%q, %v)", tc.header, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRequireAdmin(t *testing.T) {
	admin := auth.Identity{UserID: "u1", TeamID: "t1", Role: auth.RoleAdmin}
	member := auth.Identity{UserID: "u2", TeamID: "t1", Role: auth.RoleMember}

	run := func(ident auth.Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/analytics", nil)
		req = req.WithContext(auth.ContextWithIdentity(req.Context(), ident))
		rec := httptest.NewRecorder()
		requireAdmin(rec, req)
		return rec
	}

	if rec := run(admin); rec.Code != http.StatusOK {
		t.Fatalf("admin blocked with %d", rec.Code)
	}
	if rec := run(member); rec.Code != http.StatusForbidden {
		t.Fatalf("member passed with %d, want 403", rec.Code)
	}
}

func TestPublicPathsSkipGuard(t *testing.T) {
	api := newTestAPI(t, 1000)
	h := api.Handler()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "203.0.113.8:1000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusUnauthorized {
			t.Errorf("%s should not require a token", path)
		}
	}
}
