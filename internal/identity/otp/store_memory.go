package otp

import (
	"context"
	"fmt"
	"sync"

	"paraph/pkg/platform/sentinel"
)

// InMemoryStore keeps challenges in memory for tests and single-node dev.
type InMemoryStore struct {
	mu         sync.RWMutex
	challenges map[string]*Challenge
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{challenges: make(map[string]*Challenge)}
}

func (s *InMemoryStore) Save(_ context.Context, challenge *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *challenge
	s.challenges[challenge.SubjectKey] = &copied
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subjectKey string) (*Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if challenge, ok := s.challenges[subjectKey]; ok {
		copied := *challenge
		return &copied, nil
	}
	return nil, fmt.Errorf("challenge for %s: %w", subjectKey, sentinel.ErrNotFound)
}

func (s *InMemoryStore) Delete(_ context.Context, subjectKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.challenges[subjectKey]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.challenges, subjectKey)
	return nil
}
