package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionMode decides what a new login does to tokens issued earlier for
// the same principal.
type SessionMode string

const (
	// SessionSingle keeps only the latest token live.
	SessionSingle SessionMode = "single"
	// SessionMulti keeps every token live until its own expiry.
	SessionMulti SessionMode = "multi"
)

func ParseSessionMode(s string) (SessionMode, error) {
	switch m := SessionMode(strings.ToLower(strings.TrimSpace(s))); m {
	case SessionSingle, SessionMulti:
		return m, nil
	case "":
		return SessionSingle, nil
	}
	return "", fmt.Errorf("unknown session mode %q", s)
}

// SessionStore maps live tokens back to the principal that holds them.
type SessionStore interface {
	Bind(ctx context.Context, username, token string, expiresAt time.Time) error
	Lookup(ctx context.Context, token string) (string, error)
}

type session struct {
	username  string
	expiresAt time.Time
}

type MemorySessionStore struct {
	mode SessionMode
	now  func() time.Time

	mu      sync.RWMutex
	byToken map[string]session
	byUser  map[string][]string
}

func NewMemorySessionStore(mode SessionMode, now func() time.Time) *MemorySessionStore {
	if now == nil {
		now = time.Now
	}
	return &MemorySessionStore{
		mode:    mode,
		now:     now,
		byToken: make(map[string]session),
		byUser:  make(map[string][]string),
	}
}

func (s *MemorySessionStore) Bind(_ context.Context, username, token string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	kept := s.byUser[username][:0]
	for _, t := range s.byUser[username] {
		sess := s.byToken[t]
		if s.mode == SessionSingle || !sess.expiresAt.After(now) {
			delete(s.byToken, t)
			continue
		}
		kept = append(kept, t)
	}
	s.byToken[token] = session{username: username, expiresAt: expiresAt}
	s.byUser[username] = append(kept, token)
	return nil
}

func (s *MemorySessionStore) Lookup(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.byToken[token]
	if !ok || !sess.expiresAt.After(s.now()) {
		return "", ErrSessionNotFound
	}
	return sess.username, nil
}
