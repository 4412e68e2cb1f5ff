package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *InMemoryUserStore, *InMemorySessionStore) {
	t.Helper()
	users := NewInMemoryUserStore()
	sessions := NewInMemorySessionStore()
	svc, err := NewService(users, sessions, ServiceConfig{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	return svc, users, sessions
}

func TestSignupThenLoginYieldsDistinctSession(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if signup.Token == "" {
		t.Fatalf("expected non-empty token")
	}

	stored, err := users.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if stored.PasswordHash == "wonderland" || strings.Contains(stored.PasswordHash, "wonderland") {
		t.Fatalf("password stored in plaintext")
	}

	login, err := svc.Login(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if login.Token == signup.Token {
		t.Fatalf("expected login session distinct from signup session")
	}

	for _, tok := range []string{signup.Token, login.Token} {
		u, err := svc.ResolveSession(ctx, tok)
		if err != nil {
			t.Fatalf("ResolveSession(%s) error: %v", tok, err)
		}
		if u.Username != "alice" {
			t.Fatalf("expected username alice, got %q", u.Username)
		}
	}
}

func TestSignupRejectsDuplicateAndEmpty(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if _, err := svc.Signup(ctx, "alice", "other"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	if _, err := svc.Signup(ctx, "   ", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank username, got %v", err)
	}
	if _, err := svc.Signup(ctx, "bob", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
	if _, err := svc.Signup(ctx, "bob", strings.Repeat("x", maxPasswordBytes+1)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for long password, got %v", err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Signup(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Signup() error: %v", err)
	}

	_, wrongPass := svc.Login(ctx, "alice", "nope")
	_, noUser := svc.Login(ctx, "mallory", "secret")
	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(noUser, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPass, noUser)
	}
	if wrongPass.Error() != noUser.Error() {
		t.Fatalf("login errors differ: %q vs %q", wrongPass, noUser)
	}
}

func TestDestroySessionIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Signup(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	if err := svc.DestroySession(ctx, session.Token); err != nil {
		t.Fatalf("DestroySession() error: %v", err)
	}
	if err := svc.DestroySession(ctx, session.Token); err != nil {
		t.Fatalf("second DestroySession() error: %v", err)
	}
	if _, err := svc.ResolveSession(ctx, session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}
}

func TestResolveSessionWithVanishedUser(t *testing.T) {
	svc, users, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.Signup(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}
	users.delete(session.UserID)

	if _, err := svc.ResolveSession(ctx, session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for orphaned session, got %v", err)
	}
}

func TestSessionTokensAreDigits(t *testing.T) {
	svc, _, _ := newTestService(t)
	session, err := svc.CreateSession(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("CreateSession() error: %v", err)
	}
	if len(session.Token) != 20 {
		t.Fatalf("expected 20 character token, got %d", len(session.Token))
	}
	if strings.Trim(session.Token, "0123456789") != "" {
		t.Fatalf("expected digits-only token, got %q", session.Token)
	}
}

func TestSessionsSurviveRestartWithFileStores(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	users, err := NewFileUserStore(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	sessions, err := NewFileSessionStore(filepath.Join(dir, "sessions.json"))
	if err != nil {
		t.Fatalf("NewFileSessionStore() error: %v", err)
	}
	svc, err := NewService(users, sessions, ServiceConfig{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	session, err := svc.Signup(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Signup() error: %v", err)
	}

	users2, _ := NewFileUserStore(filepath.Join(dir, "users.json"))
	sessions2, _ := NewFileSessionStore(filepath.Join(dir, "sessions.json"))
	svc2, err := NewService(users2, sessions2, ServiceConfig{BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() second instance error: %v", err)
	}
	u, err := svc2.ResolveSession(ctx, session.Token)
	if err != nil {
		t.Fatalf("ResolveSession() after restart error: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("expected alice, got %q", u.Username)
	}
	if _, err := svc2.Login(ctx, "alice", "secret"); err != nil {
		t.Fatalf("Login() after restart error: %v", err)
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil, NewInMemorySessionStore(), ServiceConfig{}); err == nil {
		t.Fatalf("expected error for nil user store")
	}
	if _, err := NewService(NewInMemoryUserStore(), nil, ServiceConfig{}); err == nil {
		t.Fatalf("expected error for nil session store")
	}
	if _, err := NewService(NewInMemoryUserStore(), NewInMemorySessionStore(), ServiceConfig{BcryptCost: 99}); err == nil {
		t.Fatalf("expected error for out-of-range bcrypt cost")
	}
	if _, err := NewService(NewInMemoryUserStore(), NewInMemorySessionStore(), ServiceConfig{BcryptCost: bcrypt.MinCost, TokenLength: 4}); err == nil {
		t.Fatalf("expected error for short token length")
	}
}
