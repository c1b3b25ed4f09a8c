package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"paraph/pkg/platform/sentinel"
)

// InMemoryStore keeps token records in memory for tests and single-node dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[uuid.UUID]*Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ID]; ok {
		return sentinel.ErrConflict
	}
	copied := *record
	s.records[record.ID] = &copied
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if record, ok := s.records[id]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, fmt.Errorf("token %s: %w", id, sentinel.ErrNotFound)
}

// MarkConsumed sets the consumption timestamp exactly once. The check and the
// write share the store lock, so concurrent submissions cannot both succeed.
func (s *InMemoryStore) MarkConsumed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("token %s: %w", id, sentinel.ErrNotFound)
	}
	if !record.ConsumedAt.IsZero() {
		return sentinel.ErrAlreadyUsed
	}
	record.ConsumedAt = at
	return nil
}

func (s *InMemoryStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, record := range s.records {
		if record.DocumentID == documentID {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}
