// Package token implements the remote identity verifier: single-purpose
// possession tokens scoped to one (document, recipient) pair, substituting
// for an interactive login.
//
// The token travels inside the invitation and is the sole credential a remote
// party needs. Redeeming proves possession; the token is consumed only when
// the subsequent signature submission succeeds, so an interrupted signing
// session can be retried with the same token.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/platform/sentinel"
	"paraph/pkg/requestcontext"
)

// Store persists token records. Implementations return sentinel errors.
type Store interface {
	Create(ctx context.Context, record *Record) error
	Find(ctx context.Context, id uuid.UUID) (*Record, error)
	MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

// Errors surfaced by the verifier. A wrong-document token deliberately reads
// as not-found so callers cannot probe which documents a token belongs to.
var (
	ErrTokenNotFound = dErrors.New(dErrors.CodeNotFound, "verification token not found")
	ErrTokenConsumed = dErrors.New(dErrors.CodeConflict, "verification token already used")
	ErrTokenExpired  = dErrors.New(dErrors.CodeConflict, "verification token expired")
)

// Grant identifies the recipient a redeemed token vouches for.
type Grant struct {
	TokenID     uuid.UUID
	DocumentID  uuid.UUID
	RecipientID uuid.UUID
}

// Policy carries optional hardening. Zero value: tokens never expire.
type Policy struct {
	TokenTTL time.Duration
}

const secretBytes = 32

// Service mints and redeems verification tokens.
type Service struct {
	store  Store
	policy Policy
}

// Option configures the service.
type Option func(*Service)

func WithPolicy(policy Policy) Option {
	return func(s *Service) { s.policy = policy }
}

// New constructs the token verifier.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue mints an opaque token for the (document, recipient) pair and returns
// its cleartext form "<tokenID>.<secret>". The cleartext is never stored.
func (s *Service) Issue(ctx context.Context, documentID, recipientID uuid.UUID) (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate token secret")
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "hash token secret")
	}

	now := requestcontext.Now(ctx)
	record := &Record{
		ID:          uuid.New(),
		DocumentID:  documentID,
		RecipientID: recipientID,
		SecretHash:  string(hash),
		IssuedAt:    now,
	}
	if s.policy.TokenTTL > 0 {
		record.ExpiresAt = now.Add(s.policy.TokenTTL)
	}

	if err := s.store.Create(ctx, record); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "save token record")
	}

	return fmt.Sprintf("%s.%s", record.ID, secret), nil
}

// Redeem validates possession and scope, returning the recipient identity.
// It does not consume the token; Consume is called once the signature lands.
func (s *Service) Redeem(ctx context.Context, tokenString string, documentID uuid.UUID) (*Grant, error) {
	tokenID, secret, ok := parse(tokenString)
	if !ok {
		return nil, ErrTokenNotFound
	}

	record, err := s.store.Find(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load token record")
	}

	// Scope check before anything else: a token minted for another document
	// is indistinguishable from an unknown one.
	if record.DocumentID != documentID {
		return nil, ErrTokenNotFound
	}
	if bcrypt.CompareHashAndPassword([]byte(record.SecretHash), []byte(secret)) != nil {
		return nil, ErrTokenNotFound
	}
	if record.Consumed() {
		return nil, ErrTokenConsumed
	}
	if record.Expired(requestcontext.Now(ctx)) {
		return nil, ErrTokenExpired
	}

	return &Grant{
		TokenID:     record.ID,
		DocumentID:  record.DocumentID,
		RecipientID: record.RecipientID,
	}, nil
}

// Consume marks the token used. Called by the document service in the same
// step that records the recipient's signature.
func (s *Service) Consume(ctx context.Context, tokenID uuid.UUID) error {
	err := s.store.MarkConsumed(ctx, tokenID, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return ErrTokenConsumed
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return ErrTokenNotFound
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "consume token")
	}
	return nil
}

// RevokeDocumentTokens makes every in-flight token for the document
// unredeemable. Called when a document is deleted.
func (s *Service) RevokeDocumentTokens(ctx context.Context, documentID uuid.UUID) (int, error) {
	deleted, err := s.store.DeleteByDocument(ctx, documentID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "revoke document tokens")
	}
	return deleted, nil
}

func parse(tokenString string) (uuid.UUID, string, bool) {
	idPart, secret, found := strings.Cut(tokenString, ".")
	if !found || secret == "" {
		return uuid.Nil, "", false
	}
	tokenID, err := uuid.Parse(idPart)
	if err != nil {
		return uuid.Nil, "", false
	}
	return tokenID, secret, true
}
