package mail

import (
	"context"
	"sort"
	"sync"
)

const (
	defaultListLimit = 200
	maxListLimit     = 1000
)

type Store interface {
	Insert(ctx context.Context, m *Message) error
	List(ctx context.Context, f Filter) ([]Message, error)
}

func effectiveLimit(limit int) int {
	if limit <= 0 || limit > maxListLimit {
		return defaultListLimit
	}
	return limit
}

type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *m)
	return nil
}

// List returns matching messages newest first.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Message, error) {
	s.mu.RLock()
	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		if f.matches(m) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit := effectiveLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
