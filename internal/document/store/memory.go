// Package store provides document persistence. Implementations expose an
// Execute callback that holds the write lock across validation and mutation
// so the party cap and the sign-once rule hold under concurrency.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"paraph/internal/document/models"
	"paraph/pkg/platform/sentinel"
)

// Memory keeps documents in memory for tests and single-node dev.
type Memory struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*models.Document
}

func NewMemory() *Memory {
	return &Memory{documents: make(map[uuid.UUID]*models.Document)}
}

func (s *Memory) Create(_ context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[doc.ID]; ok {
		return sentinel.ErrConflict
	}
	s.documents[doc.ID] = clone(doc)
	return nil
}

func (s *Memory) FindByID(_ context.Context, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return clone(doc), nil
}

func (s *Memory) List(_ context.Context) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, clone(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Execute runs validate then mutate on the stored document while holding the
// store lock, so no other writer can interleave between the two.
func (s *Memory) Execute(_ context.Context, id uuid.UUID,
	validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	working := clone(doc)
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.documents[id] = working
	return clone(working), nil
}

func (s *Memory) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.documents, id)
	return nil
}

func clone(doc *models.Document) *models.Document {
	copied := *doc
	copied.Signers = make([]models.Signer, len(doc.Signers))
	for i, signer := range doc.Signers {
		if signer.Artifact != nil {
			artifact := *signer.Artifact
			signer.Artifact = &artifact
		}
		copied.Signers[i] = signer
	}
	copied.Recipients = make([]models.Recipient, len(doc.Recipients))
	for i, recipient := range doc.Recipients {
		if recipient.Artifact != nil {
			artifact := *recipient.Artifact
			recipient.Artifact = &artifact
		}
		copied.Recipients[i] = recipient
	}
	return &copied
}
