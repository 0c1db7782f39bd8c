// Package agent answers natural-language questions about a team's captured
// decisions.
package agent

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"spaq.app/internal/decisions"
)

// Answer is the response to one question.
type Answer struct {
	Query       string            `json:"query"`
	Relevance   float64           `json:"relevance"`
	Matches     []decisions.Event `json:"matches"`
	Suggestions []string          `json:"suggestions"`
	AnsweredAt  time.Time         `json:"answered_at"`
}

// Recommender ranks a team's decision events against a query. The default
// implementation is a stand-in; a real ranking engine can be substituted
// without touching any route contract.
type Recommender interface {
	Answer(ctx context.Context, query string, events []decisions.Event) (Answer, error)
}

// Static is the default Recommender. It keeps the reference behavior:
// substring matching, a pseudo-random relevance score and a fixed
// suggestion list.
type Static struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

var _ Recommender = (*Static)(nil)

var defaultSuggestions = []string{
	"Who made this decision?",
	"What alternatives were considered?",
	"When was this last revisited?",
	"Which chain does this decision belong to?",
}

// NewStatic seeds the default recommender.
func NewStatic() *Static {
	return &Static{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
}

func (s *Static) Answer(ctx context.Context, query string, events []decisions.Event) (Answer, error) {
	matches := decisions.FilterByQuery(events, query)
	if len(matches) > 5 {
		matches = matches[:5]
	}

	s.mu.Lock()
	// Relevance in [0.5, 1.0) when something matched, [0, 0.5) otherwise.
	score := s.rnd.Float64() / 2
	s.mu.Unlock()
	if len(matches) > 0 {
		score += 0.5
	}

	return Answer{
		Query:       query,
		Relevance:   score,
		Matches:     matches,
		Suggestions: defaultSuggestions,
		AnsweredAt:  s.now().UTC(),
	}, nil
}
