// Package models holds the document aggregate: the document itself, its
// registered signing parties, and the lifecycle invariants that tie them
// together.
package models

import (
	"time"

	"github.com/google/uuid"

	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
)

// Status is the document lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// IdentityMethod records how a signer proved who they are.
type IdentityMethod string

const (
	IdentityNone IdentityMethod = "none"
	IdentityOTP  IdentityMethod = "otp"
)

// DefaultPartyCap bounds the number of signing parties per document.
const DefaultPartyCap = 3

var (
	ErrPartyCapReached = dErrors.New(dErrors.CodeCapacity, "signing party cap reached")
	ErrPartyNotFound   = dErrors.New(dErrors.CodeNotFound, "signing party not found")
	ErrNotVerified     = dErrors.New(dErrors.CodeConflict, "party identity not verified")
	ErrAlreadySigned   = dErrors.New(dErrors.CodeConflict, "party has already signed")
	ErrAlreadyDeclined = dErrors.New(dErrors.CodeConflict, "party has declined to sign")
)

// Signer is a local party who signs in person after OTP identity
// verification.
type Signer struct {
	ID               uuid.UUID         `json:"id"`
	Position         int               `json:"position"`
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	IdentityMethod   IdentityMethod    `json:"identity_method"`
	IdentityVerified bool              `json:"identity_verified"`
	Artifact         *capture.Artifact `json:"artifact,omitempty"`
	SignedAt         time.Time         `json:"signed_at,omitzero"`
	DeclinedAt       time.Time         `json:"declined_at,omitzero"`
}

func (s *Signer) Signed() bool   { return !s.SignedAt.IsZero() }
func (s *Signer) Declined() bool { return !s.DeclinedAt.IsZero() }

// Recipient is a remote party invited by email. Possession of the issued
// token substitutes for interactive identity verification.
type Recipient struct {
	ID       uuid.UUID         `json:"id"`
	Position int               `json:"position"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Artifact *capture.Artifact `json:"artifact,omitempty"`
	SignedAt time.Time         `json:"signed_at,omitzero"`
}

func (r *Recipient) Signed() bool { return !r.SignedAt.IsZero() }

// Document is the aggregate root for one signing workflow.
//
// Invariants:
//   - At most PartyCap parties (signers plus recipients) per document
//   - A party signs at most once; artifacts are immutable after signing
//   - Status is driven by the signed-party count and never regresses:
//     0 signed keeps the current state, 1..cap-1 means in_progress,
//     cap means completed
type Document struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	ContentRef string      `json:"content_ref,omitempty"`
	MimeKind   string      `json:"mime_kind,omitempty"`
	Status     Status      `json:"status"`
	Deadline   time.Time   `json:"deadline,omitzero"`
	Signers    []Signer    `json:"signers"`
	Recipients []Recipient `json:"recipients"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func NewDocument(id uuid.UUID, name string, now time.Time) (*Document, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name cannot be empty")
	}
	if len(name) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document name must be 256 characters or less")
	}
	return &Document{
		ID:        id,
		Name:      name,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// PartyCount is the number of registered parties, signed or not.
func (d *Document) PartyCount() int {
	return len(d.Signers) + len(d.Recipients)
}

// SignedCount is the number of parties that have signed.
func (d *Document) SignedCount() int {
	count := 0
	for i := range d.Signers {
		if d.Signers[i].Signed() {
			count++
		}
	}
	for i := range d.Recipients {
		if d.Recipients[i].Signed() {
			count++
		}
	}
	return count
}

// CanAddParty checks the party cap before registration.
func (d *Document) CanAddParty(cap int) error {
	if cap <= 0 {
		cap = DefaultPartyCap
	}
	if d.PartyCount() >= cap {
		return ErrPartyCapReached
	}
	return nil
}

// AddSigner registers a local signer at the next position. Call CanAddParty
// first inside an Execute callback.
func (d *Document) AddSigner(signer Signer, now time.Time) {
	signer.Position = d.PartyCount() + 1
	d.Signers = append(d.Signers, signer)
	d.UpdatedAt = now
}

// AddRecipient registers a remote recipient at the next position.
func (d *Document) AddRecipient(recipient Recipient, now time.Time) {
	recipient.Position = d.PartyCount() + 1
	d.Recipients = append(d.Recipients, recipient)
	d.UpdatedAt = now
}

func (d *Document) FindSigner(id uuid.UUID) *Signer {
	for i := range d.Signers {
		if d.Signers[i].ID == id {
			return &d.Signers[i]
		}
	}
	return nil
}

func (d *Document) FindRecipient(id uuid.UUID) *Recipient {
	for i := range d.Recipients {
		if d.Recipients[i].ID == id {
			return &d.Recipients[i]
		}
	}
	return nil
}

// CanSignerSign validates the identity gate and the sign-once rule.
// Use with ApplySignerSignature in Execute callbacks.
func (d *Document) CanSignerSign(id uuid.UUID) error {
	signer := d.FindSigner(id)
	if signer == nil {
		return ErrPartyNotFound
	}
	if !signer.IdentityVerified {
		return ErrNotVerified
	}
	if signer.Signed() {
		return ErrAlreadySigned
	}
	if signer.Declined() {
		return ErrAlreadyDeclined
	}
	return nil
}

// CanSignerDecline validates a declination. Declining is terminal for the
// party but leaves the document status alone.
func (d *Document) CanSignerDecline(id uuid.UUID) error {
	signer := d.FindSigner(id)
	if signer == nil {
		return ErrPartyNotFound
	}
	if signer.Signed() {
		return ErrAlreadySigned
	}
	if signer.Declined() {
		return ErrAlreadyDeclined
	}
	return nil
}

// ApplySignerDecline records the declination. Call CanSignerDecline first.
func (d *Document) ApplySignerDecline(id uuid.UUID, now time.Time) {
	signer := d.FindSigner(id)
	signer.DeclinedAt = now
	d.UpdatedAt = now
}

// ApplySignerSignature records the artifact and advances the lifecycle.
// Call CanSignerSign first.
func (d *Document) ApplySignerSignature(id uuid.UUID, artifact capture.Artifact, cap int, now time.Time) {
	signer := d.FindSigner(id)
	signer.Artifact = &artifact
	signer.SignedAt = now
	d.UpdatedAt = now
	d.RecomputeStatus(cap)
}

// CanRecipientSign validates the sign-once rule for a remote recipient. The
// identity gate is the redeemed token, checked by the caller.
func (d *Document) CanRecipientSign(id uuid.UUID) error {
	recipient := d.FindRecipient(id)
	if recipient == nil {
		return ErrPartyNotFound
	}
	if recipient.Signed() {
		return ErrAlreadySigned
	}
	return nil
}

// ApplyRecipientSignature records the artifact and advances the lifecycle.
// Call CanRecipientSign first.
func (d *Document) ApplyRecipientSignature(id uuid.UUID, artifact capture.Artifact, cap int, now time.Time) {
	recipient := d.FindRecipient(id)
	recipient.Artifact = &artifact
	recipient.SignedAt = now
	d.UpdatedAt = now
	d.RecomputeStatus(cap)
}

// MarkSent moves a pending document to in_progress when invitations go out.
func (d *Document) MarkSent(now time.Time) {
	if d.Status == StatusPending {
		d.Status = StatusInProgress
	}
	d.UpdatedAt = now
}

// RecomputeStatus derives the lifecycle state from the signed-party count.
// Transitions are monotonic: a document never moves backwards.
func (d *Document) RecomputeStatus(cap int) {
	if cap <= 0 {
		cap = DefaultPartyCap
	}
	if d.Status == StatusCompleted {
		return
	}
	count := d.SignedCount()
	switch {
	case count >= cap:
		d.Status = StatusCompleted
	case count >= 1:
		d.Status = StatusInProgress
	}
}

// Overdue reports whether the deadline has passed without completion.
func (d *Document) Overdue(now time.Time) bool {
	return !d.Deadline.IsZero() && now.After(d.Deadline) && d.Status != StatusCompleted
}
