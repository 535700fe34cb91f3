package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aescanero/periphery/pkg/domain"
)

// FinalStore implements ports.FinalStore using an in-memory map.
// Used when FINAL_STORE=memory and in tests.
type FinalStore struct {
	finals map[string]domain.Bundle
	mu     sync.RWMutex
}

// NewFinalStore creates a new in-memory final store
func NewFinalStore() *FinalStore {
	return &FinalStore{
		finals: make(map[string]domain.Bundle),
	}
}

// Merge adds tensors to the request's final bundle (ports.FinalStore interface)
func (s *FinalStore) Merge(ctx context.Context, inferID string, tensors domain.Bundle) (domain.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.finals[inferID]
	if !ok {
		stored = make(domain.Bundle, len(tensors))
		s.finals[inferID] = stored
	}
	stored.Merge(tensors)

	// Copy to avoid mutations
	return stored.Clone(), nil
}

// Get retrieves the final bundle for a request (ports.FinalStore interface)
func (s *FinalStore) Get(ctx context.Context, inferID string) (domain.Bundle, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.finals[inferID]
	if !ok {
		return nil, false, nil
	}
	return stored.Clone(), true, nil
}

// Delete removes the final bundle for a request (ports.FinalStore interface)
func (s *FinalStore) Delete(ctx context.Context, inferID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.finals, inferID)
	return nil
}

// List returns the sorted ids of every stored request (ports.FinalStore interface)
func (s *FinalStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.finals))
	for id := range s.finals {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids, nil
}
