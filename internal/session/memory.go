package session

import (
	"context"
	"sync"
	"time"

	"tokengate/pkg/sentinel"
)

type memoryEntry struct {
	summary   Summary
	expiresAt time.Time
}

// MemoryStore is a process-local stash for single-instance deployments and
// tests. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, summary Summary, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memoryEntry{summary: summary, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, sessionID string) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	delete(s.entries, sessionID)
	if s.now().After(entry.expiresAt) {
		return nil, sentinel.ErrNotFound
	}
	return &entry.summary, nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
