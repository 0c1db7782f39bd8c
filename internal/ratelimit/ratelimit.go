// Package ratelimit implements a fixed-window admission counter keyed by
// client identifier.
package ratelimit

import (
	"sync"
	"time"
)

// Store counts requests per key within rolling windows. Implementations may
// be process-local or backed by a shared external counter without changing
// the limiter contract.
type Store interface {
	// Increment records one request for key and returns the post-increment
	// count together with the window reset instant. A request arriving at or
	// after the stored reset instant starts a fresh window with count 1.
	Increment(key string, now time.Time) (count int, resetAt time.Time)
	// Sweep deletes entries whose window has passed and reports how many
	// were removed.
	Sweep(now time.Time) int
}

type window struct {
	count   int
	resetAt time.Time
}

// Memory is the in-process Store. The map is shared by every request
// goroutine, so all access goes through the mutex.
type Memory struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*window
}

var _ Store = (*Memory)(nil)

// NewMemory creates a store with the given window duration.
func NewMemory(windowDur time.Duration) *Memory {
	return &Memory{
		window:  windowDur,
		entries: make(map[string]*window),
	}
}

func (m *Memory) Increment(key string, now time.Time) (int, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.entries[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(m.window)}
		m.entries[key] = w
		return w.count, w.resetAt
	}
	w.count++
	return w.count, w.resetAt
}

func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, w := range m.entries {
		if !now.Before(w.resetAt) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Limiter applies a ceiling on top of a Store.
type Limiter struct {
	store Store
	max   int
	now   func() time.Time
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// New creates a Limiter admitting at most max requests per window per key.
func New(store Store, max int) *Limiter {
	return &Limiter{store: store, max: max, now: time.Now}
}

// WithClock overrides the time source. Returns the limiter for chaining in
// tests.
func (l *Limiter) WithClock(fn func() time.Time) *Limiter {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Allow admits or rejects one request for key. The ceiling check is
// strictly-greater-than: exactly max requests pass per window and the
// (max+1)th is rejected.
func (l *Limiter) Allow(key string) Decision {
	count, resetAt := l.store.Increment(key, l.now())
	remaining := l.max - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= l.max,
		Limit:     l.max,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// StartSweep launches the periodic eviction task and returns its stop
// function. The sweep takes no lock across in-flight requests beyond the
// store mutex; a key deleted just before a request that would have reset it
// anyway is a benign race the read path already handles.
func (l *Limiter) StartSweep(interval time.Duration) (stop func()) {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				l.store.Sweep(l.now())
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
