package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) (*PostgresSessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresSessionStore{db: db}, nil
}

func (s *PostgresSessionStore) Put(ctx context.Context, session Session) error {
	const q = `
INSERT INTO sessions (token, user_id, created_at)
VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, session.Token, session.UserID, session.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSessionStore) Get(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, ErrSessionNotFound
	}
	const q = `SELECT token, user_id, created_at FROM sessions WHERE token = $1`
	var sess Session
	if err := s.db.QueryRowContext(ctx, q, token).Scan(&sess.Token, &sess.UserID, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("query session: %w", err)
	}
	return sess, nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
