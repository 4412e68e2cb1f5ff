package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"livetimers/timetracker/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidInput       = errors.New("invalid signup input")
)

const (
	maxUsernameLength = 64
	maxPasswordBytes  = 72
)

type Service struct {
	users       UserStore
	sessions    SessionStore
	cost        int
	tokenLength int
	nowFunc     func() time.Time
	dummyHash   []byte
}

type ServiceConfig struct {
	BcryptCost  int
	TokenLength int
}

func NewService(userStore UserStore, sessionStore SessionStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessionStore == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if cfg.TokenLength == 0 {
		cfg.TokenLength = token.DefaultLength
	}
	if cfg.TokenLength < token.MinLength {
		return nil, fmt.Errorf("session token length must be >= %d", token.MinLength)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &Service{
		users:       userStore,
		sessions:    sessionStore,
		cost:        cfg.BcryptCost,
		tokenLength: cfg.TokenLength,
		nowFunc:     time.Now,
		dummyHash:   dummy,
	}, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *Service) VerifyPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// Signup creates the user and opens its first session.
func (s *Service) Signup(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return Session{}, fmt.Errorf("%w: username must be 1-%d characters", ErrInvalidInput, maxUsernameLength)
	}
	if password == "" || len(password) > maxPasswordBytes {
		return Session{}, fmt.Errorf("%w: password must be 1-%d bytes", ErrInvalidInput, maxPasswordBytes)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	u := User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return s.CreateSession(ctx, u.ID)
}

// Login never tells the caller whether the username exists.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !s.VerifyPassword(password, u.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return s.CreateSession(ctx, u.ID)
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	tok, err := token.Digits(s.tokenLength)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}
	session := Session{
		Token:     tok,
		UserID:    userID,
		CreatedAt: s.nowFunc().UTC(),
	}
	if err := s.sessions.Put(ctx, session); err != nil {
		return Session{}, fmt.Errorf("store session: %w", err)
	}
	return session, nil
}

// ResolveSession returns ErrInvalidToken when the session is unknown or its
// user no longer exists. Any other error is a persistence failure.
func (s *Service) ResolveSession(ctx context.Context, tok string) (User, error) {
	if tok == "" {
		return User{}, ErrInvalidToken
	}
	sess, err := s.sessions.Get(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return User{}, ErrInvalidToken
		}
		return User{}, fmt.Errorf("lookup session: %w", err)
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidToken
		}
		return User{}, fmt.Errorf("lookup session user: %w", err)
	}
	return u, nil
}

func (s *Service) DestroySession(ctx context.Context, tok string) error {
	if tok == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, tok); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
