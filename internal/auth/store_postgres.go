package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

type PostgresUserStore struct {
	db *sql.DB
}

// NewPostgresUserStore expects the users table to exist (see internal/migrations).
func NewPostgresUserStore(db *sql.DB) (*PostgresUserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &PostgresUserStore{db: db}, nil
}

func (s *PostgresUserStore) Create(ctx context.Context, user User) error {
	user.Username = strings.TrimSpace(user.Username)
	if user.ID == "" || user.Username == "" || user.PasswordHash == "" {
		return fmt.Errorf("id, username, and password hash are required")
	}

	const q = `INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`
	if _, err := s.db.ExecContext(ctx, q, user.ID, user.Username, user.PasswordHash); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrUsernameTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrUserNotFound
	}

	const q = `SELECT id, username, password_hash FROM users WHERE username = $1`
	return s.scanOne(ctx, q, username)
}

func (s *PostgresUserStore) GetByID(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrUserNotFound
	}
	const q = `SELECT id, username, password_hash FROM users WHERE id = $1`
	return s.scanOne(ctx, q, id)
}

func (s *PostgresUserStore) scanOne(ctx context.Context, q string, arg string) (User, error) {
	var u User
	if err := s.db.QueryRowContext(ctx, q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
