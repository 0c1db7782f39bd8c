package decisions

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"spaq.app/internal/ids"
)

// Service defines team-scoped record operations. Every call takes the
// caller's resolved team id; no operation may return or mutate a record
// belonging to another team.
type Service interface {
	CreateEvent(ctx context.Context, teamID string, e *Event) (Event, error)
	GetEvent(ctx context.Context, teamID, id string) (Event, error)
	ListEvents(ctx context.Context, teamID string, limit int) ([]Event, error)
	SearchEvents(ctx context.Context, teamID, query string, limit int) ([]Event, error)

	CreateChain(ctx context.Context, teamID string, c *Chain) (Chain, error)
	GetChain(ctx context.Context, teamID, id string) (Chain, error)
	ListChains(ctx context.Context, teamID string) ([]Chain, error)
	UpdateChain(ctx context.Context, teamID, id, name string, document []byte) (Chain, error)
	DeleteChain(ctx context.Context, teamID, id string) error

	TeamStats(ctx context.Context, teamID string) (Stats, error)
}

// InMemory implements Service with in-process concurrency safety. Used by
// tests and DSN-less development runs.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]*Event
	chains map[string]*Chain
	now    func() time.Time
}

var _ Service = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		events: make(map[string]*Event),
		chains: make(map[string]*Chain),
		now:    time.Now,
	}
}

func (s *InMemory) CreateEvent(ctx context.Context, teamID string, e *Event) (Event, error) {
	if strings.TrimSpace(e.Title) == "" {
		return Event{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := *e
	out.ID = ids.New()
	out.TeamID = teamID
	out.CreatedAt = s.now().UTC()
	s.events[out.ID] = &out
	return out, nil
}

func (s *InMemory) GetEvent(ctx context.Context, teamID, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok || e.TeamID != teamID {
		return Event{}, ErrNotFound
	}
	return *e, nil
}

func (s *InMemory) ListEvents(ctx context.Context, teamID string, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, e := range s.events {
		if e.TeamID == teamID {
			out = append(out, *e)
		}
	}
	sortEventsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) SearchEvents(ctx context.Context, teamID, query string, limit int) ([]Event, error) {
	all, err := s.ListEvents(ctx, teamID, 0)
	if err != nil {
		return nil, err
	}
	matched := FilterByQuery(all, query)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemory) CreateChain(ctx context.Context, teamID string, c *Chain) (Chain, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Chain{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	out := *c
	out.ID = ids.New()
	out.TeamID = teamID
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.Document == nil {
		out.Document = []byte("{}")
	}
	s.chains[out.ID] = &out
	return out, nil
}

func (s *InMemory) GetChain(ctx context.Context, teamID, id string) (Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chains[id]
	if !ok || c.TeamID != teamID {
		return Chain{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) ListChains(ctx context.Context, teamID string) ([]Chain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Chain
	for _, c := range s.chains {
		if c.TeamID == teamID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *InMemory) UpdateChain(ctx context.Context, teamID, id, name string, document []byte) (Chain, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[id]
	if !ok || c.TeamID != teamID {
		return Chain{}, ErrNotFound
	}
	if name != "" {
		c.Name = name
	}
	if document != nil {
		c.Document = document
	}
	c.UpdatedAt = s.now().UTC()
	return *c, nil
}

func (s *InMemory) DeleteChain(ctx context.Context, teamID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chains[id]
	if !ok || c.TeamID != teamID {
		return ErrNotFound
	}
	delete(s.chains, id)
	return nil
}

func (s *InMemory) TeamStats(ctx context.Context, teamID string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, e := range s.events {
		if e.TeamID == teamID {
			st.Events++
		}
	}
	for _, c := range s.chains {
		if c.TeamID == teamID {
			st.Chains++
		}
	}
	return st, nil
}

func sortEventsNewestFirst(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].ID > events[j].ID
		}
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
}

// FilterByQuery keeps events whose title, context or tags contain any word
// of the query (case-insensitive). An empty query matches nothing.
func FilterByQuery(events []Event, query string) []Event {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil
	}
	var out []Event
	for _, e := range events {
		haystack := strings.ToLower(e.Title + " " + e.Context + " " + strings.Join(e.Tags, " "))
		for _, w := range words {
			if strings.Contains(haystack, w) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
