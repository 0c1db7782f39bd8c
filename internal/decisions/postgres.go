package decisions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"spaq.app/internal/ids"
)

// PGStore implements Service using PostgreSQL. The team_id filter appears in
// every statement so the tenancy invariant is enforced here and nowhere else.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Service = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

func (s *PGStore) CreateEvent(ctx context.Context, teamID string, e *Event) (Event, error) {
	if strings.TrimSpace(e.Title) == "" {
		return Event{}, ErrInvalidInput
	}
	out := *e
	out.ID = ids.New()
	out.TeamID = teamID
	out.CreatedAt = s.now().UTC()
	tags, _ := json.Marshal(out.Tags)
	_, err := s.db.ExecContext(ctx,
		`insert into decision_events(id, team_id, title, context, decided_by, tags, created_at)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		out.ID, out.TeamID, out.Title, out.Context, out.DecidedBy, tags, out.CreatedAt,
	)
	if err != nil {
		return Event{}, err
	}
	return out, nil
}

func (s *PGStore) GetEvent(ctx context.Context, teamID, id string) (Event, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, team_id, title, context, decided_by, tags, created_at
		 from decision_events where id=$1 and team_id=$2`, id, teamID)
	return scanEvent(row)
}

func (s *PGStore) ListEvents(ctx context.Context, teamID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, team_id, title, context, decided_by, tags, created_at
		 from decision_events where team_id=$1 order by created_at desc limit $2`, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PGStore) SearchEvents(ctx context.Context, teamID, query string, limit int) ([]Event, error) {
	// Matching happens in process over the team's recent events; the SQL
	// layer only guarantees scoping and recency.
	recent, err := s.ListEvents(ctx, teamID, 500)
	if err != nil {
		return nil, err
	}
	matched := FilterByQuery(recent, query)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *PGStore) CreateChain(ctx context.Context, teamID string, c *Chain) (Chain, error) {
	if strings.TrimSpace(c.Name) == "" {
		return Chain{}, ErrInvalidInput
	}
	now := s.now().UTC()
	out := *c
	out.ID = ids.New()
	out.TeamID = teamID
	out.CreatedAt = now
	out.UpdatedAt = now
	if out.Document == nil {
		out.Document = []byte("{}")
	}
	_, err := s.db.ExecContext(ctx,
		`insert into decision_chains(id, team_id, name, document, created_at, updated_at)
		 values($1,$2,$3,$4,$5,$6)`,
		out.ID, out.TeamID, out.Name, out.Document, out.CreatedAt, out.UpdatedAt,
	)
	if err != nil {
		return Chain{}, err
	}
	return out, nil
}

func (s *PGStore) GetChain(ctx context.Context, teamID, id string) (Chain, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, team_id, name, document, created_at, updated_at
		 from decision_chains where id=$1 and team_id=$2`, id, teamID)
	return scanChain(row)
}

func (s *PGStore) ListChains(ctx context.Context, teamID string) ([]Chain, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, team_id, name, document, created_at, updated_at
		 from decision_chains where team_id=$1 order by updated_at desc`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chain
	for rows.Next() {
		var c Chain
		if err := rows.Scan(&c.ID, &c.TeamID, &c.Name, &c.Document, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateChain(ctx context.Context, teamID, id, name string, document []byte) (Chain, error) {
	res, err := s.db.ExecContext(ctx,
		`update decision_chains
		 set name = coalesce(nullif($3, ''), name),
		     document = coalesce($4, document),
		     updated_at = $5
		 where id=$1 and team_id=$2`,
		id, teamID, name, document, s.now().UTC(),
	)
	if err != nil {
		return Chain{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Chain{}, err
	}
	if affected == 0 {
		return Chain{}, ErrNotFound
	}
	return s.GetChain(ctx, teamID, id)
}

func (s *PGStore) DeleteChain(ctx context.Context, teamID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from decision_chains where id=$1 and team_id=$2`, id, teamID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) TeamStats(ctx context.Context, teamID string) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from decision_events where team_id=$1`, teamID).Scan(&st.Events); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from decision_chains where team_id=$1`, teamID).Scan(&st.Chains); err != nil {
		return Stats{}, err
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		e    Event
		tags []byte
	)
	if err := row.Scan(&e.ID, &e.TeamID, &e.Title, &e.Context, &e.DecidedBy, &tags, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &e.Tags); err != nil {
			return Event{}, fmt.Errorf("decode tags for event %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanChain(row rowScanner) (Chain, error) {
	var c Chain
	if err := row.Scan(&c.ID, &c.TeamID, &c.Name, &c.Document, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chain{}, ErrNotFound
		}
		return Chain{}, err
	}
	return c, nil
}
