// Package stream fan-outs decision activity to dashboard subscribers.
package stream

import (
	"context"
	"sync"
	"time"
)

// Activity describes one decision-record change for the live feed.
type Activity struct {
	TeamID    string    `json:"team_id"`
	Kind      string    `json:"kind"` // "event.created", "chain.created", "chain.updated"
	RecordID  string    `json:"record_id"`
	Title     string    `json:"title"`
	ActorID   string    `json:"actor_id"`
	Timestamp time.Time `json:"timestamp"`
}

type subscriber struct {
	teamID string
	ch     chan Activity
}

// Stream delivers activity to all subscribers of the matching team.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]subscriber
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]subscriber)}
}

// Subscribe registers a subscriber for one team and returns the channel that
// will receive its activity. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, teamID string) <-chan Activity {
	ch := make(chan Activity, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{teamID: teamID, ch: ch}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers the activity to every subscriber of its team. Slow
// subscribers are skipped rather than blocking the publisher.
func (s *Stream) Publish(act Activity) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.teamID != act.TeamID {
			continue
		}
		select {
		case sub.ch <- act:
		default:
		}
	}
}

// Subscribers reports the current subscriber count (for readiness info).
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
