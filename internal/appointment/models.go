// Package appointment manages signing appointments and the verification of
// the documents brought to them. A document uploaded at an appointment walks
// uploading → completed → pending_verification → verified; the final step
// needs the operator's acknowledgment and a witness signature together.
package appointment

import (
	"time"

	"github.com/google/uuid"

	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
)

// Status is the appointment state.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusPending   Status = "pending"
)

// UploadState tracks a document through intake and verification.
type UploadState string

const (
	UploadStateUploading           UploadState = "uploading"
	UploadStateCompleted           UploadState = "completed"
	UploadStatePendingVerification UploadState = "pending_verification"
	UploadStateVerified            UploadState = "verified"
)

var (
	ErrAppointmentNotFound    = dErrors.New(dErrors.CodeNotFound, "appointment not found")
	ErrDocumentNotFound       = dErrors.New(dErrors.CodeNotFound, "appointment document not found")
	ErrInvalidTransition      = dErrors.New(dErrors.CodeConflict, "document is not in the required state")
	ErrVerificationIncomplete = dErrors.New(dErrors.CodeValidation, "operator acknowledgment and witness signature are both required")
	ErrWitnessNotVerified     = dErrors.New(dErrors.CodeConflict, "witness identity not verified")
)

// UploadedDocument is one document brought to an appointment.
type UploadedDocument struct {
	ID              uuid.UUID         `json:"id"`
	Name            string            `json:"name"`
	State           UploadState       `json:"state"`
	OperatorAck     bool              `json:"operator_ack"`
	WitnessArtifact *capture.Artifact `json:"witness_artifact,omitempty"`
	VerifiedAt      time.Time         `json:"verified_at,omitzero"`
}

// FinishUpload marks the transfer done.
func (d *UploadedDocument) FinishUpload() error {
	if d.State != UploadStateUploading {
		return ErrInvalidTransition
	}
	d.State = UploadStateCompleted
	return nil
}

// RequestVerification queues a completed document for the verification step.
func (d *UploadedDocument) RequestVerification() error {
	if d.State != UploadStateCompleted {
		return ErrInvalidTransition
	}
	d.State = UploadStatePendingVerification
	return nil
}

// Verify records the acknowledgment and the witness artifact in one step.
// Neither alone moves the document forward.
func (d *UploadedDocument) Verify(ack bool, artifact *capture.Artifact, now time.Time) error {
	if d.State != UploadStatePendingVerification {
		return ErrInvalidTransition
	}
	if !ack || artifact == nil {
		return ErrVerificationIncomplete
	}
	d.OperatorAck = true
	d.WitnessArtifact = artifact
	d.State = UploadStateVerified
	d.VerifiedAt = now
	return nil
}

// Appointment is one scheduled signing session.
type Appointment struct {
	ID            uuid.UUID          `json:"id"`
	ClientName    string             `json:"client_name"`
	WitnessName   string             `json:"witness_name,omitempty"`
	ScheduledAt   time.Time          `json:"scheduled_at"`
	Status        Status             `json:"status"`
	DocumentNames []string           `json:"document_names"`
	Documents     []UploadedDocument `json:"documents"`
	CreatedAt     time.Time          `json:"created_at"`
}

func NewAppointment(id uuid.UUID, clientName string, scheduledAt, now time.Time, documentNames []string) (*Appointment, error) {
	if clientName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "client name is required")
	}
	if scheduledAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "scheduled time is required")
	}
	return &Appointment{
		ID:            id,
		ClientName:    clientName,
		ScheduledAt:   scheduledAt,
		Status:        StatusScheduled,
		DocumentNames: documentNames,
		CreatedAt:     now,
	}, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (a *Appointment) Confirm() error {
	if a.Status != StatusScheduled {
		return dErrors.New(dErrors.CodeConflict, "appointment is not awaiting confirmation")
	}
	a.Status = StatusConfirmed
	return nil
}

// FindDocument returns the uploaded document with the given ID.
func (a *Appointment) FindDocument(id uuid.UUID) *UploadedDocument {
	for i := range a.Documents {
		if a.Documents[i].ID == id {
			return &a.Documents[i]
		}
	}
	return nil
}
