package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"spaq.app/internal/auth"
)

// publicPaths need no bearer token. Everything else under the mux does.
var publicPaths = map[string]bool{
	"/":                  true,
	"/healthz":           true,
	"/readyz":            true,
	"/metrics":           true,
	"/api/auth/register": true,
	"/api/auth/login":    true,
	"/api/auth/refresh":  true,
}

// withAuth is the access guard: it validates the bearer token and stores the
// caller identity on the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, r, "missing bearer token")
			return
		}
		ident, err := a.auth.ValidateAccess(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			unauthorized(w, r, msg)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), ident)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	raw := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(raw, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="spaq"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// requireIdentity fetches the guard-installed identity, failing the request
// when absent.
func requireIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing bearer token")
		return auth.Identity{}, false
	}
	return ident, true
}

// requireAdmin gates handlers on the ADMIN role.
func requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return auth.Identity{}, false
	}
	if !ident.IsAdmin() {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return auth.Identity{}, false
	}
	return ident, true
}
