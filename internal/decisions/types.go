// Package decisions holds the team-scoped domain records: captured decision
// events and decision chains.
package decisions

import (
	"errors"
	"time"
)

// Event is a captured team decision.
type Event struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Title     string    `json:"title"`
	Context   string    `json:"context,omitempty"`
	DecidedBy string    `json:"decided_by"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Chain is a decision-chain document edited in the dashboard. Nodes and
// edges are stored as an opaque JSON document; the backend only scopes and
// versions it.
type Chain struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Name      string    `json:"name"`
	Document  []byte    `json:"document"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats are the per-team analytics counters.
type Stats struct {
	Events int `json:"events"`
	Chains int `json:"chains"`
}

var (
	ErrNotFound     = errors.New("decisions: not found")
	ErrInvalidInput = errors.New("decisions: invalid input")
)
