package httpapi

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"spaq.app/internal/obs"
)

// withAdmission is the first gate every request passes. Counting happens per
// client IP; requests with no derivable address share the "unknown" bucket.
func (a *API) withAdmission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := clientIP(r)
		if key == "" {
			key = "unknown"
		}
		d := a.limiter.Allow(key)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", d.ResetAt.UTC().Format(time.RFC3339))

		if !d.Allowed {
			obs.IncRateLimited()
			retry := int(time.Until(d.ResetAt).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			h.Set("Retry-After", strconv.Itoa(retry))
			writeError(w, r, http.StatusTooManyRequests, "too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authThrottle is a stricter per-IP token bucket in front of the credential
// endpoints, independent of the window-based admission limiter.
type authThrottle struct {
	mu      sync.Mutex
	buckets map[string]*throttleEntry
	rps     rate.Limit
	burst   int
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newAuthThrottle(rps float64, burst int) *authThrottle {
	return &authThrottle{
		buckets: make(map[string]*throttleEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (t *authThrottle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.buckets[key]
	if !ok {
		e = &throttleEntry{lim: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[key] = e
	}
	e.lastSeen = time.Now()
	return e.lim.Allow()
}

func (t *authThrottle) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if key == "" {
			key = "unknown"
		}
		if !t.allow(key) {
			obs.IncRateLimited()
			writeError(w, r, http.StatusTooManyRequests, "too many requests, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// startJanitor evicts idle buckets until the returned stop func runs.
func (t *authThrottle) startJanitor(interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				t.mu.Lock()
				for key, e := range t.buckets {
					if time.Since(e.lastSeen) > 10*time.Minute {
						delete(t.buckets, key)
					}
				}
				t.mu.Unlock()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
