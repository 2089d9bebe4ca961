package supervisor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore implements RunStore using an in-memory map. Used when no
// persistence backend is configured.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*RunRecord
}

// NewInMemoryStore creates an empty in-memory run store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[uuid.UUID]*RunRecord)}
}

func (s *InMemoryStore) SaveRun(_ context.Context, rec *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.runs[rec.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetRun(_ context.Context, id uuid.UUID) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryStore) ListRuns(_ context.Context) ([]*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Compile-time check.
var _ RunStore = (*InMemoryStore)(nil)
