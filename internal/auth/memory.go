package auth

import (
	"context"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. Used by
// tests and DSN-less development runs.
type InMemory struct {
	mu      sync.RWMutex
	orgs    map[string]*Organization
	teams   map[string]*Team
	users   map[string]*User
	byEmail map[string]string
	refresh map[string]*RefreshToken
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		orgs:    make(map[string]*Organization),
		teams:   make(map[string]*Team),
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		refresh: make(map[string]*RefreshToken),
	}
}

var _ Store = (*InMemory)(nil)

func (s *InMemory) Register(ctx context.Context, org *Organization, team *Team, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[user.Email]; ok {
		return ErrAlreadyExists
	}
	s.orgs[org.ID] = org
	s.teams[team.ID] = team
	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *InMemory) FindUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *u
	return &out, nil
}

func (s *InMemory) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.users[id]
	return &out, nil
}

func (s *InMemory) FindTeam(ctx context.Context, id string) (*Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *t
	return &out, nil
}

func (s *InMemory) FindOrganization(ctx context.Context, id string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *o
	return &out, nil
}

func (s *InMemory) CreateRefreshToken(ctx context.Context, tok *RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tok
	s.refresh[tok.ID] = &cp
	return nil
}

func (s *InMemory) FindRefreshToken(ctx context.Context, id string) (*RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.refresh[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (s *InMemory) DeleteRefreshToken(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, id)
	return nil
}

func (s *InMemory) DeleteRefreshTokensByUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.refresh {
		if rec.UserID == userID {
			delete(s.refresh, id)
		}
	}
	return nil
}
