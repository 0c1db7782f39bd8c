// Package httpapi is the HTTP surface: request gates, middleware and route
// handlers.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"spaq.app/internal/agent"
	"spaq.app/internal/auth"
	"spaq.app/internal/decisions"
	"spaq.app/internal/obs"
	"spaq.app/internal/ratelimit"
	"spaq.app/internal/stream"
)

// ReadyProbe checks the backing store, when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config wires the API's collaborators.
type Config struct {
	Version     string
	ReadyProbe  ReadyProbe
	Auth        *auth.Service
	Decisions   decisions.Service
	Recommender agent.Recommender
	Activity    *stream.Stream
	Limiter     *ratelimit.Limiter
	CORSOrigin  string
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth      *auth.Service
	decisions decisions.Service
	rec       agent.Recommender
	activity  *stream.Stream
	limiter   *ratelimit.Limiter

	corsOrigin  string
	stopJanitor func()
}

// New builds the router. Credential endpoints additionally sit behind a
// stricter token-bucket throttle than the global admission limiter.
func New(cfg Config) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: cfg.ReadyProbe,
		version:    cfg.Version,
		auth:       cfg.Auth,
		decisions:  cfg.Decisions,
		rec:        cfg.Recommender,
		activity:   cfg.Activity,
		limiter:    cfg.Limiter,
		corsOrigin: cfg.CORSOrigin,
	}
	if a.rec == nil {
		a.rec = agent.NewStatic()
	}

	throttle := newAuthThrottle(1, 10)
	a.stopJanitor = throttle.startJanitor(time.Minute)

	// health/ready/metrics
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	// credential endpoints
	a.mux.Handle("/api/auth/register", throttle.wrap(http.HandlerFunc(a.handleRegister)))
	a.mux.Handle("/api/auth/login", throttle.wrap(http.HandlerFunc(a.handleLogin)))
	a.mux.HandleFunc("/api/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/api/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/api/auth/me", a.handleMe)

	// team-scoped records
	a.mux.HandleFunc("/api/events", a.handleEventsCollection)
	a.mux.HandleFunc("/api/events/", a.handleEventResource)
	a.mux.HandleFunc("/api/chains", a.handleChainsCollection)
	a.mux.HandleFunc("/api/chains/", a.handleChainResource)

	// agent + analytics
	a.mux.HandleFunc("/api/agent/ask", a.handleAgentAsk)
	a.mux.HandleFunc("/api/analytics", a.handleAnalytics)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the fully wrapped http.Handler. The admission limiter runs
// before the access guard on every request.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = a.withAdmission(h)
	h = MaxBodyBytes(h, 1<<20)
	h = a.cors(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Close releases background tasks owned by the API.
func (a *API) Close() {
	if a.stopJanitor != nil {
		a.stopJanitor()
	}
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "spaq-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	obs.SetReady(true)
	writeData(w, r, http.StatusOK, map[string]any{"status": "ready"})
}
