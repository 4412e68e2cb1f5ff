package timers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"livetimers/timetracker/internal/token"
)

var (
	ErrNotFound     = errors.New("timer not found")
	ErrInvalidInput = errors.New("invalid timer input")
)

const maxDescriptionLength = 500

// Service is the in-process timer store. With a state file it rewrites the
// file after every mutation.
type Service struct {
	nowFunc   func() time.Time
	stateFile string

	mu     sync.RWMutex
	timers map[string]Timer
}

func NewService() *Service {
	return &Service{
		nowFunc: time.Now,
		timers:  make(map[string]Timer),
	}
}

func NewServiceWithFile(stateFile string) (*Service, error) {
	s := &Service{
		nowFunc:   time.Now,
		stateFile: strings.TrimSpace(stateFile),
		timers:    make(map[string]Timer),
	}
	if s.stateFile == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := s.loadState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) Create(_ context.Context, userID, description string) (Timer, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[t.ID] = t.Clone()
	if err := s.persistLocked(); err != nil {
		delete(s.timers, t.ID)
		return Timer{}, err
	}
	return t, nil
}

func (s *Service) List(_ context.Context, userID string) ([]Timer, error) {
	s.mu.RLock()
	out := make([]Timer, 0)
	for _, t := range s.timers {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// Stop ends an active timer owned by userID. Stopping an already stopped
// timer returns it unchanged. Timers of other users are reported as missing.
func (s *Service) Stop(_ context.Context, userID, timerID string) (Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timers[timerID]
	if !ok || existing.UserID != userID {
		return Timer{}, ErrNotFound
	}
	if !existing.IsActive {
		return existing.Clone(), nil
	}

	prev := existing.Clone()
	end := s.nowFunc().UTC()
	if end.Before(existing.Start) {
		end = existing.Start
	}
	existing.IsActive = false
	existing.End = &end
	s.timers[timerID] = existing
	if err := s.persistLocked(); err != nil {
		s.timers[timerID] = prev
		return Timer{}, err
	}
	return existing.Clone(), nil
}

func (s *Service) loadState() error {
	b, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read timer state: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	var decoded []Timer
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("decode timer state: %w", err)
	}
	for _, t := range decoded {
		if t.ID == "" {
			continue
		}
		s.timers[t.ID] = t.Clone()
	}
	return nil
}

func (s *Service) persistLocked() error {
	if s.stateFile == "" {
		return nil
	}
	out := make([]Timer, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode timer state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.stateFile), 0o755); err != nil {
		return fmt.Errorf("mkdir timer state dir: %w", err)
	}
	if err := os.WriteFile(s.stateFile, b, 0o644); err != nil {
		return fmt.Errorf("write timer state: %w", err)
	}
	return nil
}

func validate(userID, description string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if len(description) > maxDescriptionLength {
		return "", fmt.Errorf("%w: description must be at most %d characters", ErrInvalidInput, maxDescriptionLength)
	}
	return description, nil
}
