// Package service orchestrates the document signing workflow: party
// registration, both verification pipelines, and the lifecycle driven by the
// signed-party count.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"paraph/internal/audit"
	docmetrics "paraph/internal/document/metrics"
	"paraph/internal/document/models"
	"paraph/internal/identity/token"
	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/email"
	"paraph/pkg/platform/sentinel"
	"paraph/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mock_collaborators_test.go -package=service

// DocumentStore persists the document aggregate. Execute holds the write
// lock (mutex or row lock) across validation and mutation.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context) ([]*models.Document, error)
	Execute(ctx context.Context, id uuid.UUID,
		validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// TokenIssuer is the remote verification pipeline.
type TokenIssuer interface {
	Issue(ctx context.Context, documentID, recipientID uuid.UUID) (string, error)
	Redeem(ctx context.Context, tokenString string, documentID uuid.UUID) (*token.Grant, error)
	Consume(ctx context.Context, tokenID uuid.UUID) error
	RevokeDocumentTokens(ctx context.Context, documentID uuid.UUID) (int, error)
}

// IdentityVerifier is the local verification pipeline, keyed by party ID.
type IdentityVerifier interface {
	IsVerified(ctx context.Context, subjectKey string) (bool, error)
}

// Notifier delivers invitations to remote recipients.
type Notifier interface {
	Notify(ctx context.Context, address, payload string) error
}

// AuditPublisher records the signing history.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
	Trail(ctx context.Context, documentID uuid.UUID) ([]audit.Event, error)
}

// StatusBroadcaster pushes lifecycle transitions to watching clients.
type StatusBroadcaster interface {
	Broadcast(documentID uuid.UUID, status models.Status)
}

// FileIntake resolves a document's content reference to its bytes.
type FileIntake interface {
	Open(ctx context.Context, contentRef string) (io.ReadCloser, string, error)
}

// Service orchestrates the signing workflow.
type Service struct {
	store       DocumentStore
	tokens      TokenIssuer
	notifier    Notifier
	verifier    IdentityVerifier
	audit       AuditPublisher
	broadcaster StatusBroadcaster
	intake      FileIntake
	metrics     *docmetrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	partyCap    int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithVerifier(verifier IdentityVerifier) Option {
	return func(s *Service) { s.verifier = verifier }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) { s.audit = publisher }
}

func WithBroadcaster(broadcaster StatusBroadcaster) Option {
	return func(s *Service) { s.broadcaster = broadcaster }
}

func WithFileIntake(intake FileIntake) Option {
	return func(s *Service) { s.intake = intake }
}

func WithMetrics(m *docmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPartyCap(cap int) Option {
	return func(s *Service) { s.partyCap = cap }
}

// New constructs the workflow service. The store, token issuer, and notifier
// are required; everything else is optional.
func New(store DocumentStore, tokens TokenIssuer, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	s := &Service{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		logger:   slog.Default(),
		tracer:   otel.Tracer("paraph/document"),
		partyCap: models.DefaultPartyCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create registers a new document in pending state.
func (s *Service) Create(ctx context.Context, name, contentRef, mimeKind string, deadline time.Time) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "document.Create")
	defer span.End()

	doc, err := models.NewDocument(uuid.New(), strings.TrimSpace(name), requestcontext.Now(ctx))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.MessageOf(err))
		}
		return nil, err
	}
	doc.ContentRef = contentRef
	doc.MimeKind = mimeKind
	doc.Deadline = deadline

	if err := s.store.Create(ctx, doc); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create document")
	}

	s.emitAudit(ctx, doc.ID, audit.ActionDocumentCreated, "")
	if s.metrics != nil {
		s.metrics.DocumentsCreated.Inc()
	}
	return doc, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}
	return doc, nil
}

// List returns every document, oldest first.
func (s *Service) List(ctx context.Context) ([]*models.Document, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list documents")
	}
	return docs, nil
}

// AddSigner registers a local signing party, subject to the party cap.
func (s *Service) AddSigner(ctx context.Context, documentID uuid.UUID, name, address string) (*models.Signer, error) {
	ctx, span := s.tracer.Start(ctx, "document.AddSigner")
	defer span.End()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "signer name is required")
	}

	signer := models.Signer{
		ID:             uuid.New(),
		Name:           name,
		Email:          strings.TrimSpace(address),
		IdentityMethod: models.IdentityOTP,
	}
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanAddParty(s.partyCap) },
		func(d *models.Document) { d.AddSigner(signer, now) },
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	s.emitAudit(ctx, documentID, audit.ActionPartyAdded, signer.ID.String())
	return &signer, nil
}

// AddRecipient registers a remote recipient, subject to the same cap. The
// display name falls back to one derived from the email address.
func (s *Service) AddRecipient(ctx context.Context, documentID uuid.UUID, name, address string) (*models.Recipient, error) {
	ctx, span := s.tracer.Start(ctx, "document.AddRecipient")
	defer span.End()

	address = strings.TrimSpace(address)
	if !email.Valid(address) {
		return nil, dErrors.New(dErrors.CodeValidation, "recipient email is invalid")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email.DeriveNameFromEmail(address)
	}

	recipient := models.Recipient{ID: uuid.New(), Name: name, Email: address}
	now := requestcontext.Now(ctx)
	_, err := s.store.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanAddParty(s.partyCap) },
		func(d *models.Document) { d.AddRecipient(recipient, now) },
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	s.emitAudit(ctx, documentID, audit.ActionPartyAdded, recipient.ID.String())
	return &recipient, nil
}

// RecordSignature records a local signer's artifact. The identity gate
// consults the OTP pipeline when the stored flag is not yet set; nothing is
// persisted unless every check passes.
func (s *Service) RecordSignature(ctx context.Context, documentID, signerID uuid.UUID, artifact capture.Artifact) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "document.RecordSignature")
	defer span.End()
	start := time.Now()

	verified, err := s.signerVerified(ctx, signerID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	doc, err := s.store.Execute(ctx, documentID,
		func(d *models.Document) error {
			if verified {
				if signer := d.FindSigner(signerID); signer != nil {
					signer.IdentityVerified = true
				}
			}
			return d.CanSignerSign(signerID)
		},
		func(d *models.Document) {
			d.ApplySignerSignature(signerID, artifact, s.partyCap, now)
		},
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	s.emitAudit(ctx, documentID, audit.ActionPartySigned, signerID.String())
	s.afterSignature(ctx, doc)
	if s.metrics != nil {
		s.metrics.SignaturesRecorded.Inc()
		s.metrics.ObserveSign(start)
	}
	return doc, nil
}

// DeclineSignature records a signer's refusal. Terminal for the party; the
// document status is untouched.
func (s *Service) DeclineSignature(ctx context.Context, documentID, signerID uuid.UUID) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "document.DeclineSignature")
	defer span.End()

	now := requestcontext.Now(ctx)
	doc, err := s.store.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanSignerDecline(signerID) },
		func(d *models.Document) { d.ApplySignerDecline(signerID, now) },
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	s.emitAudit(ctx, documentID, audit.ActionPartyDeclined, signerID.String())
	return doc, nil
}

// SendForSigning validates the recipient list, mints one token per
// recipient, dispatches invitations, and moves the document to in_progress.
func (s *Service) SendForSigning(ctx context.Context, documentID uuid.UUID) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "document.SendForSigning")
	defer span.End()

	doc, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	valid := 0
	for i := range doc.Recipients {
		if email.Valid(doc.Recipients[i].Email) {
			valid++
		}
	}
	if valid == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one recipient with a valid email is required")
	}

	type invitation struct {
		address string
		payload string
	}
	invitations := make([]invitation, 0, valid)
	for i := range doc.Recipients {
		recipient := &doc.Recipients[i]
		if !email.Valid(recipient.Email) || recipient.Signed() {
			continue
		}
		tokenString, err := s.tokens.Issue(ctx, doc.ID, recipient.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue verification token")
		}
		s.emitAudit(ctx, doc.ID, audit.ActionTokenIssued, recipient.ID.String())
		invitations = append(invitations, invitation{
			address: recipient.Email,
			payload: fmt.Sprintf("%s, you are invited to sign %q: /sign/%s", recipient.Name, doc.Name, tokenString),
		})
	}

	now := requestcontext.Now(ctx)
	doc, err = s.store.Execute(ctx, documentID,
		func(*models.Document) error { return nil },
		func(d *models.Document) { d.MarkSent(now) },
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	// Delivery is fire-and-forget; the tokens already exist and a failed
	// send can be repeated.
	for _, inv := range invitations {
		if err := s.notifier.Notify(ctx, inv.address, inv.payload); err != nil {
			s.logger.WarnContext(ctx, "invitation delivery failed",
				"document_id", doc.ID, "address", inv.address, "error", err)
		}
	}

	s.emitAudit(ctx, doc.ID, audit.ActionDocumentSent, "")
	s.broadcast(doc)
	return doc, nil
}

// RedeemAndSign is the remote pipeline in one step: redeem the token,
// record the artifact, consume the token. The token survives failed
// submissions and dies with the successful one.
func (s *Service) RedeemAndSign(ctx context.Context, documentID uuid.UUID, tokenString string, artifact capture.Artifact) (*models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "document.RedeemAndSign")
	defer span.End()
	start := time.Now()

	grant, err := s.tokens.Redeem(ctx, tokenString, documentID)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, documentID, audit.ActionTokenRedeemed, grant.RecipientID.String())
	if s.metrics != nil {
		s.metrics.TokensRedeemed.Inc()
	}

	now := requestcontext.Now(ctx)
	doc, err := s.store.Execute(ctx, documentID,
		func(d *models.Document) error { return d.CanRecipientSign(grant.RecipientID) },
		func(d *models.Document) {
			d.ApplyRecipientSignature(grant.RecipientID, artifact, s.partyCap, now)
		},
	)
	if err != nil {
		return nil, wrapDocumentErr(err)
	}

	if err := s.tokens.Consume(ctx, grant.TokenID); err != nil {
		// The signature is already committed; a racing consume only means
		// the token is dead, which is the desired end state.
		s.logger.WarnContext(ctx, "token consume after signature failed",
			"document_id", documentID, "token_id", grant.TokenID, "error", err)
	}

	s.emitAudit(ctx, documentID, audit.ActionPartySigned, grant.RecipientID.String())
	s.afterSignature(ctx, doc)
	if s.metrics != nil {
		s.metrics.SignaturesRecorded.Inc()
		s.metrics.ObserveSign(start)
	}
	return doc, nil
}

// Delete removes the document and revokes its in-flight tokens.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "document.Delete")
	defer span.End()

	if err := s.store.Delete(ctx, id); err != nil {
		return wrapDocumentErr(err)
	}
	if _, err := s.tokens.RevokeDocumentTokens(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "token revocation on delete failed",
			"document_id", id, "error", err)
	}
	s.emitAudit(ctx, id, audit.ActionDocumentDeleted, "")
	return nil
}

// Download streams the document content through the file intake.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error) {
	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, "", wrapDocumentErr(err)
	}
	if s.intake == nil || doc.ContentRef == "" {
		return nil, "", dErrors.New(dErrors.CodeNotFound, "document has no stored content")
	}
	reader, mime, err := s.intake.Open(ctx, doc.ContentRef)
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to open document content")
	}
	if mime == "" {
		mime = doc.MimeKind
	}
	return reader, mime, nil
}

// Trail returns the audit history for one document.
func (s *Service) Trail(ctx context.Context, id uuid.UUID) ([]audit.Event, error) {
	if s.audit == nil {
		return nil, nil
	}
	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, wrapDocumentErr(err)
	}
	return s.audit.Trail(ctx, id)
}

func (s *Service) signerVerified(ctx context.Context, signerID uuid.UUID) (bool, error) {
	if s.verifier == nil {
		return false, nil
	}
	verified, err := s.verifier.IsVerified(ctx, signerID.String())
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check identity verification")
	}
	return verified, nil
}

func (s *Service) afterSignature(ctx context.Context, doc *models.Document) {
	s.broadcast(doc)
	if doc.Status == models.StatusCompleted {
		s.emitAudit(ctx, doc.ID, audit.ActionDocumentCompleted, "")
		if s.metrics != nil {
			s.metrics.DocumentsCompleted.Inc()
		}
	}
}

func (s *Service) broadcast(doc *models.Document) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(doc.ID, doc.Status)
	}
}

func (s *Service) emitAudit(ctx context.Context, documentID uuid.UUID, action audit.Action, actor string) {
	if actor == "" {
		actor = requestcontext.PartyID(ctx)
	}
	s.logger.InfoContext(ctx, string(action),
		"document_id", documentID, "actor", actor, "log_type", "audit",
		"request_id", requestcontext.RequestID(ctx))
	if s.audit == nil {
		return
	}
	if err := s.audit.Emit(ctx, audit.Event{
		DocumentID: documentID,
		Actor:      actor,
		Action:     action,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func wrapDocumentErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "document not found")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "document store failure")
	}
}
