package timers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livetimers/timetracker/internal/token"
)

type PGService struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// NewPGService expects the timers table to exist (see internal/migrations).
func NewPGService(db *sql.DB) (*PGService, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PGService{
		db:      db,
		nowFunc: time.Now,
	}, nil
}

const timerColumns = `id, user_id, description, started_at, is_active, ended_at`

func (s *PGService) Create(ctx context.Context, userID, description string) (Timer, error) {
	description, err := validate(userID, description)
	if err != nil {
		return Timer{}, err
	}

	id, err := token.Digits(token.DefaultLength)
	if err != nil {
		return Timer{}, fmt.Errorf("generate id: %w", err)
	}
	t := Timer{
		ID:          id,
		UserID:      userID,
		Description: description,
		Start:       s.nowFunc().UTC(),
		IsActive:    true,
	}

	const q = `
INSERT INTO timers (id, user_id, description, started_at, is_active)
VALUES ($1, $2, $3, $4, TRUE)`
	if _, err := s.db.ExecContext(ctx, q, t.ID, t.UserID, t.Description, t.Start); err != nil {
		return Timer{}, fmt.Errorf("insert timer: %w", err)
	}
	return t, nil
}

func (s *PGService) List(ctx context.Context, userID string) ([]Timer, error) {
	q := `SELECT ` + timerColumns + ` FROM timers WHERE user_id = $1 ORDER BY started_at ASC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	out := make([]Timer, 0)
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timer: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}
	return out, nil
}

// Stop relies on the conditional UPDATE for atomicity: of two concurrent
// stops only one matches is_active = TRUE. The loser falls through to a plain
// read and sees the stopped record.
func (s *PGService) Stop(ctx context.Context, userID, timerID string) (Timer, error) {
	if timerID == "" || userID == "" {
		return Timer{}, ErrNotFound
	}

	q := `
UPDATE timers
SET is_active = FALSE,
	ended_at = GREATEST(started_at, $3)
WHERE id = $1 AND user_id = $2 AND is_active
RETURNING ` + timerColumns
	t, err := scanTimer(s.db.QueryRowContext(ctx, q, timerID, userID, s.nowFunc().UTC()))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Timer{}, fmt.Errorf("stop timer: %w", err)
	}

	sel := `SELECT ` + timerColumns + ` FROM timers WHERE id = $1 AND user_id = $2`
	t, err = scanTimer(s.db.QueryRowContext(ctx, sel, timerID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Timer{}, ErrNotFound
		}
		return Timer{}, fmt.Errorf("get timer: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimer(row rowScanner) (Timer, error) {
	var t Timer
	var end sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &t.Start, &t.IsActive, &end); err != nil {
		return Timer{}, err
	}
	t.Start = t.Start.UTC()
	if end.Valid {
		e := end.Time.UTC()
		t.End = &e
	}
	return t, nil
}
