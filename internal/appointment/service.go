package appointment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/requestcontext"
)

// Store persists the appointment book as a whole list, mirroring the flat
// storage the appointment screens work against.
type Store interface {
	LoadAppointments(ctx context.Context) ([]Appointment, error)
	SaveAppointments(ctx context.Context, appointments []Appointment) error
}

// WitnessVerifier is the OTP pipeline reused for witness identity.
type WitnessVerifier interface {
	IsVerified(ctx context.Context, subjectKey string) (bool, error)
}

// Service manages appointments and their document verification flow.
type Service struct {
	store    Store
	verifier WitnessVerifier
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithWitnessVerifier enables the identity gate on witness signatures.
func WithWitnessVerifier(verifier WitnessVerifier) Option {
	return func(s *Service) { s.verifier = verifier }
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("appointment store is required")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create schedules a new appointment.
func (s *Service) Create(ctx context.Context, clientName, witnessName string, scheduledAt time.Time, documentNames []string) (*Appointment, error) {
	appointment, err := NewAppointment(uuid.New(), strings.TrimSpace(clientName),
		scheduledAt, requestcontext.Now(ctx), documentNames)
	if err != nil {
		return nil, err
	}
	appointment.WitnessName = strings.TrimSpace(witnessName)

	appointments, err := s.store.LoadAppointments(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load appointments")
	}
	appointments = append(appointments, *appointment)
	if err := s.store.SaveAppointments(ctx, appointments); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save appointments")
	}
	return appointment, nil
}

// List returns the whole appointment book.
func (s *Service) List(ctx context.Context) ([]Appointment, error) {
	appointments, err := s.store.LoadAppointments(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load appointments")
	}
	return appointments, nil
}

// Get returns one appointment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appointment, _, err := s.find(ctx, id)
	return appointment, err
}

// Confirm marks a scheduled appointment confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.update(ctx, id, func(a *Appointment) error { return a.Confirm() })
}

// AttachDocument begins an upload for the appointment.
func (s *Service) AttachDocument(ctx context.Context, id uuid.UUID, name string) (*UploadedDocument, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "document name is required")
	}
	doc := UploadedDocument{ID: uuid.New(), Name: name, State: UploadStateUploading}
	_, err := s.update(ctx, id, func(a *Appointment) error {
		a.Documents = append(a.Documents, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// FinishUpload marks a transfer complete.
func (s *Service) FinishUpload(ctx context.Context, id, documentID uuid.UUID) (*Appointment, error) {
	return s.updateDocument(ctx, id, documentID, func(d *UploadedDocument) error {
		return d.FinishUpload()
	})
}

// RequestVerification queues a completed document for verification.
func (s *Service) RequestVerification(ctx context.Context, id, documentID uuid.UUID) (*Appointment, error) {
	return s.updateDocument(ctx, id, documentID, func(d *UploadedDocument) error {
		return d.RequestVerification()
	})
}

// VerifyDocument applies the operator acknowledgment and the witness
// signature as one atomic step. When a witness verifier is configured, the
// witness must have passed OTP verification first.
func (s *Service) VerifyDocument(ctx context.Context, id, documentID uuid.UUID, ack bool, artifact *capture.Artifact, witnessKey string) (*Appointment, error) {
	if s.verifier != nil && witnessKey != "" {
		verified, err := s.verifier.IsVerified(ctx, witnessKey)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check witness identity")
		}
		if !verified {
			return nil, ErrWitnessNotVerified
		}
	}

	now := requestcontext.Now(ctx)
	return s.updateDocument(ctx, id, documentID, func(d *UploadedDocument) error {
		return d.Verify(ack, artifact, now)
	})
}

func (s *Service) find(ctx context.Context, id uuid.UUID) (*Appointment, []Appointment, error) {
	appointments, err := s.store.LoadAppointments(ctx)
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load appointments")
	}
	for i := range appointments {
		if appointments[i].ID == id {
			return &appointments[i], appointments, nil
		}
	}
	return nil, nil, ErrAppointmentNotFound
}

func (s *Service) update(ctx context.Context, id uuid.UUID, apply func(*Appointment) error) (*Appointment, error) {
	appointment, appointments, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(appointment); err != nil {
		return nil, err
	}
	if err := s.store.SaveAppointments(ctx, appointments); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save appointments")
	}
	copied := *appointment
	return &copied, nil
}

func (s *Service) updateDocument(ctx context.Context, id, documentID uuid.UUID, apply func(*UploadedDocument) error) (*Appointment, error) {
	return s.update(ctx, id, func(a *Appointment) error {
		doc := a.FindDocument(documentID)
		if doc == nil {
			return ErrDocumentNotFound
		}
		return apply(doc)
	})
}
