package obs

import "testing"

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/api/events":            "/api/events",
		"/api/events/01J0ABCDEF": "/api/events/:id",
		"/api/events/stream":     "/api/events/stream",
		"/api/chains/01J0ABCDEF": "/api/chains/:id",
		"/api/auth/login":        "/api/auth/login",
		"/healthz":               "/healthz",
		"/api/chains":            "/api/chains",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
