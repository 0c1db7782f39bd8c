// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAddr       = ":8080"
	defaultAccessTTL  = 7 * 24 * time.Hour
	defaultRefreshTTL = 30 * 24 * time.Hour
	defaultRateWindow = 15 * time.Minute
	defaultRateMax    = 100
)

// Config holds every recognized environment option.
type Config struct {
	Addr          string
	PostgresDSN   string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RateWindow    time.Duration
	RateMax       int
	CORSOrigin    string
}

// FromEnv reads SPAQ_* variables and applies defaults. The two signing
// secrets are required and must differ, so a leaked access secret cannot be
// used to forge refresh tokens.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:          envOr("SPAQ_ADDR", defaultAddr),
		PostgresDSN:   os.Getenv("SPAQ_PG_DSN"),
		AccessSecret:  strings.TrimSpace(os.Getenv("SPAQ_ACCESS_SECRET")),
		RefreshSecret: strings.TrimSpace(os.Getenv("SPAQ_REFRESH_SECRET")),
		AccessTTL:     defaultAccessTTL,
		RefreshTTL:    defaultRefreshTTL,
		RateWindow:    defaultRateWindow,
		RateMax:       defaultRateMax,
		CORSOrigin:    strings.TrimSpace(os.Getenv("SPAQ_CORS_ORIGIN")),
	}

	if cfg.AccessSecret == "" {
		return Config{}, errors.New("SPAQ_ACCESS_SECRET is required")
	}
	if cfg.RefreshSecret == "" {
		return Config{}, errors.New("SPAQ_REFRESH_SECRET is required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return Config{}, errors.New("SPAQ_ACCESS_SECRET and SPAQ_REFRESH_SECRET must differ")
	}

	if raw := os.Getenv("SPAQ_ACCESS_TTL"); raw != "" {
		d, err := ParseLifetime(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SPAQ_ACCESS_TTL: %w", err)
		}
		cfg.AccessTTL = d
	}
	if raw := os.Getenv("SPAQ_REFRESH_TTL"); raw != "" {
		d, err := ParseLifetime(raw)
		if err != nil {
			return Config{}, fmt.Errorf("SPAQ_REFRESH_TTL: %w", err)
		}
		cfg.RefreshTTL = d
	}
	if raw := os.Getenv("SPAQ_RATE_WINDOW_MS"); raw != "" {
		ms, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || ms <= 0 {
			return Config{}, fmt.Errorf("SPAQ_RATE_WINDOW_MS: expected positive integer, got %q", raw)
		}
		cfg.RateWindow = time.Duration(ms) * time.Millisecond
	}
	if raw := os.Getenv("SPAQ_RATE_MAX"); raw != "" {
		max, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || max <= 0 {
			return Config{}, fmt.Errorf("SPAQ_RATE_MAX: expected positive integer, got %q", raw)
		}
		cfg.RateMax = max
	}

	return cfg, nil
}

// ParseLifetime parses a token lifetime. Accepts Go duration syntax plus a
// day suffix ("7d", "30d"), which time.ParseDuration lacks.
func ParseLifetime(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty duration")
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid day count %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %q", raw)
	}
	return d, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
