package store

import (
	"context"
	"sort"
	"sync"

	"tokengate/internal/rules"
	"tokengate/pkg/sentinel"
)

// MemoryStore keeps rules in a map. Used by unit tests and by deployments
// that run without PostgreSQL.
type MemoryStore struct {
	mu    sync.RWMutex
	byTag map[string]*rules.Rule
}

// NewMemory creates an empty in-memory rule store.
func NewMemory() *MemoryStore {
	return &MemoryStore{byTag: make(map[string]*rules.Rule)}
}

func (s *MemoryStore) Create(ctx context.Context, rule *rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byTag[rule.Tag]; exists {
		return sentinel.ErrConflict
	}
	clone := *rule
	s.byTag[rule.Tag] = &clone
	return nil
}

func (s *MemoryStore) GetByTag(ctx context.Context, tag string) (*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.byTag[tag]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *rule
	return &clone, nil
}

func (s *MemoryStore) GetEnabledByTag(ctx context.Context, tag string) (*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.byTag[tag]
	if !ok || !rule.Enabled {
		return nil, sentinel.ErrNotFound
	}
	clone := *rule
	return &clone, nil
}

func (s *MemoryStore) Update(ctx context.Context, rule *rules.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTag[rule.Tag]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *rule
	s.byTag[rule.Tag] = &clone
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byTag[tag]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.byTag, tag)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*rules.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rules.Rule, 0, len(s.byTag))
	for _, rule := range s.byTag {
		clone := *rule
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}
