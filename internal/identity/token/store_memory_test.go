package token

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"paraph/pkg/platform/sentinel"
)

type TokenStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *TokenStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.ctx = context.Background()
}

func (s *TokenStoreSuite) newRecord(documentID uuid.UUID) *Record {
	return &Record{
		ID:          uuid.New(),
		DocumentID:  documentID,
		RecipientID: uuid.New(),
		SecretHash:  "$2a$10$hash",
		IssuedAt:    time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	}
}

func (s *TokenStoreSuite) TestCreateAndFind() {
	record := s.newRecord(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, record))

	found, err := s.store.Find(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.DocumentID, found.DocumentID)
	s.Equal(record.SecretHash, found.SecretHash)
}

func (s *TokenStoreSuite) TestCreateDuplicateConflicts() {
	record := s.newRecord(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, record))
	s.ErrorIs(s.store.Create(s.ctx, record), sentinel.ErrConflict)
}

func (s *TokenStoreSuite) TestFindUnknown() {
	_, err := s.store.Find(s.ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *TokenStoreSuite) TestFindReturnsCopy() {
	record := s.newRecord(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, record))

	found, err := s.store.Find(s.ctx, record.ID)
	s.Require().NoError(err)
	found.SecretHash = "mutated"

	again, err := s.store.Find(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal("$2a$10$hash", again.SecretHash)
}

func (s *TokenStoreSuite) TestMarkConsumedExactlyOnce() {
	record := s.newRecord(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, record))

	at := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	s.Require().NoError(s.store.MarkConsumed(s.ctx, record.ID, at))
	s.ErrorIs(s.store.MarkConsumed(s.ctx, record.ID, at.Add(time.Minute)), sentinel.ErrAlreadyUsed)

	found, err := s.store.Find(s.ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(at, found.ConsumedAt)
}

func (s *TokenStoreSuite) TestMarkConsumedUnknown() {
	err := s.store.MarkConsumed(s.ctx, uuid.New(), time.Now())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *TokenStoreSuite) TestDeleteByDocument() {
	documentID := uuid.New()
	first := s.newRecord(documentID)
	second := s.newRecord(documentID)
	other := s.newRecord(uuid.New())
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, second))
	s.Require().NoError(s.store.Create(s.ctx, other))

	deleted, err := s.store.DeleteByDocument(s.ctx, documentID)
	s.Require().NoError(err)
	s.Equal(2, deleted)

	_, err = s.store.Find(s.ctx, first.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.Find(s.ctx, other.ID)
	s.NoError(err)
}

func TestTokenStoreSuite(t *testing.T) {
	suite.Run(t, new(TokenStoreSuite))
}
