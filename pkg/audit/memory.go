package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps events in memory, oldest first.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryStorage creates an empty storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStorage) StoreBatch(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Find returns events matching c, oldest first.
func (s *MemoryStorage) Find(_ context.Context, c Criteria) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Event{}
	for _, e := range s.events {
		if c.Action != "" && e.Action != c.Action {
			continue
		}
		if c.Subscriber != "" && e.Subscriber != c.Subscriber {
			continue
		}
		if !c.Since.IsZero() && e.CreatedAt.Before(c.Since) {
			continue
		}
		out = append(out, e)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return slices.Clip(out), nil
}
