// Command api runs the spaq HTTP service.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"spaq.app/internal/agent"
	"spaq.app/internal/auth"
	"spaq.app/internal/config"
	"spaq.app/internal/decisions"
	"spaq.app/internal/httpapi"
	"spaq.app/internal/obs"
	"spaq.app/internal/ratelimit"
	"spaq.app/internal/stream"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	logger := obs.Logger()
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	var (
		db         *sql.DB
		authStore  auth.Store
		decService decisions.Service
	)
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatalf("open postgres: %v", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.PingContext(pingCtx); err != nil {
			cancel()
			logger.Fatalf("ping postgres: %v", err)
		}
		cancel()

		authStore = auth.NewPGStore(db)
		decService = decisions.NewPGStore(db)
		logger.Printf("storage: postgres")
	} else {
		authStore = auth.NewInMemory()
		decService = decisions.NewInMemory()
		logger.Printf("storage: in-memory (SPAQ_PG_DSN not set)")
	}

	authSvc, err := auth.NewService(authStore, cfg.AccessSecret, cfg.RefreshSecret,
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		logger.Fatalf("auth service: %v", err)
	}

	limiter := ratelimit.New(ratelimit.NewMemory(cfg.RateWindow), cfg.RateMax)
	stopSweep := limiter.StartSweep(time.Minute)
	defer stopSweep()

	api := httpapi.New(httpapi.Config{
		Version:     version,
		ReadyProbe:  httpapi.ReadyProbe{DB: db},
		Auth:        authSvc,
		Decisions:   decService,
		Recommender: agent.NewStatic(),
		Activity:    stream.New(),
		Limiter:     limiter,
		CORSOrigin:  cfg.CORSOrigin,
	})
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		obs.SetReady(true)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		logger.Printf("received %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("serve: %v", err)
		}
		return
	}

	obs.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}
