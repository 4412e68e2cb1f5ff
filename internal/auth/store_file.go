package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileUserStore keeps users in memory and rewrites a JSON file on every
// change. It backs single-node deployments without DATABASE_URL.
type FileUserStore struct {
	path string

	mu     sync.RWMutex
	users  map[string]User
	byName map[string]string
}

func NewFileUserStore(path string) (*FileUserStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("user state file path is required")
	}

	s := &FileUserStore{
		path:   path,
		users:  make(map[string]User),
		byName: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileUserStore) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byName[user.Username]; ok {
		return ErrUsernameTaken
	}
	s.users[user.ID] = user
	s.byName[user.Username] = user.ID
	if err := s.persistLocked(); err != nil {
		delete(s.users, user.ID)
		delete(s.byName, user.Username)
		return err
	}
	return nil
}

func (s *FileUserStore) GetByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byName[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *FileUserStore) GetByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (s *FileUserStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read user store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	var decoded []User
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode user store file: %w", err)
	}
	for _, u := range decoded {
		if strings.TrimSpace(u.Username) == "" || u.ID == "" {
			continue
		}
		s.users[u.ID] = u
		s.byName[u.Username] = u.ID
	}
	return nil
}

func (s *FileUserStore) persistLocked() error {
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return writeJSONFile(s.path, out, "user store")
}

// FileSessionStore mirrors FileUserStore for session records.
type FileSessionStore struct {
	path string

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewFileSessionStore(path string) (*FileSessionStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session state file path is required")
	}

	s := &FileSessionStore{
		path:     path,
		sessions: make(map[string]Session),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSessionStore) Put(_ context.Context, session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.sessions[session.Token]
	s.sessions[session.Token] = session
	if err := s.persistLocked(); err != nil {
		if existed {
			s.sessions[session.Token] = prev
		} else {
			delete(s.sessions, session.Token)
		}
		return err
	}
	return nil
}

func (s *FileSessionStore) Get(_ context.Context, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *FileSessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.sessions[token]
	if !ok {
		return nil
	}
	delete(s.sessions, token)
	if err := s.persistLocked(); err != nil {
		s.sessions[token] = prev
		return err
	}
	return nil
}

func (s *FileSessionStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session store file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	var decoded []Session
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode session store file: %w", err)
	}
	for _, sess := range decoded {
		if sess.Token == "" {
			continue
		}
		s.sessions[sess.Token] = sess
	}
	return nil
}

func (s *FileSessionStore) persistLocked() error {
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return writeJSONFile(s.path, out, "session store")
}

func writeJSONFile(path string, v any, what string) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s file: %w", what, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s dir: %w", what, err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write %s file: %w", what, err)
	}
	return nil
}
