package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
)

type stubWitnessVerifier struct {
	verified map[string]bool
}

func (s *stubWitnessVerifier) IsVerified(_ context.Context, subjectKey string) (bool, error) {
	return s.verified[subjectKey], nil
}

func drawnArtifact(t *testing.T) *capture.Artifact {
	t.Helper()
	session, err := capture.NewSession(capture.ModeDraw)
	require.NoError(t, err)
	require.NoError(t, session.AddStroke(capture.Stroke{{X: 0, Y: 0}, {X: 4, Y: 4}}))
	artifact, err := session.Commit()
	require.NoError(t, err)
	return &artifact
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(NewInMemoryStore(), opts...)
	require.NoError(t, err)
	return svc
}

func scheduleAppointment(t *testing.T, svc *Service) *Appointment {
	t.Helper()
	appointment, err := svc.Create(context.Background(), "Ada Lovelace", "Tim Berners-Lee",
		time.Now().Add(48*time.Hour), []string{"deed of sale"})
	require.NoError(t, err)
	return appointment
}

func attachPendingDocument(t *testing.T, svc *Service, appointmentID uuid.UUID) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	doc, err := svc.AttachDocument(ctx, appointmentID, "deed of sale.pdf")
	require.NoError(t, err)
	_, err = svc.FinishUpload(ctx, appointmentID, doc.ID)
	require.NoError(t, err)
	_, err = svc.RequestVerification(ctx, appointmentID, doc.ID)
	require.NoError(t, err)
	return doc.ID
}

func TestCreateRequiresClientNameAndTime(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "  ", "", time.Now().Add(time.Hour), nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Create(ctx, "Ada Lovelace", "", time.Time{}, nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestConfirmMovesScheduledOnly(t *testing.T) {
	svc := newTestService(t)
	appointment := scheduleAppointment(t, svc)
	ctx := context.Background()

	confirmed, err := svc.Confirm(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	_, err = svc.Confirm(ctx, appointment.ID)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestUploadLifecycleEnforcesOrder(t *testing.T) {
	svc := newTestService(t)
	appointment := scheduleAppointment(t, svc)
	ctx := context.Background()

	doc, err := svc.AttachDocument(ctx, appointment.ID, "power of attorney.pdf")
	require.NoError(t, err)
	assert.Equal(t, UploadStateUploading, doc.State)

	// Verification cannot be requested before the upload finishes.
	_, err = svc.RequestVerification(ctx, appointment.ID, doc.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err := svc.FinishUpload(ctx, appointment.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, UploadStateCompleted, updated.Documents[0].State)

	// Finishing twice is rejected.
	_, err = svc.FinishUpload(ctx, appointment.ID, doc.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	updated, err = svc.RequestVerification(ctx, appointment.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, UploadStatePendingVerification, updated.Documents[0].State)
}

func TestVerifyRequiresAckAndSignatureTogether(t *testing.T) {
	svc := newTestService(t)
	appointment := scheduleAppointment(t, svc)
	docID := attachPendingDocument(t, svc, appointment.ID)
	ctx := context.Background()

	_, err := svc.VerifyDocument(ctx, appointment.ID, docID, true, nil, "")
	assert.ErrorIs(t, err, ErrVerificationIncomplete)

	_, err = svc.VerifyDocument(ctx, appointment.ID, docID, false, drawnArtifact(t), "")
	assert.ErrorIs(t, err, ErrVerificationIncomplete)

	// Neither failed attempt moved the document.
	current, err := svc.Get(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, UploadStatePendingVerification, current.Documents[0].State)
	assert.False(t, current.Documents[0].OperatorAck)

	updated, err := svc.VerifyDocument(ctx, appointment.ID, docID, true, drawnArtifact(t), "")
	require.NoError(t, err)
	verified := updated.Documents[0]
	assert.Equal(t, UploadStateVerified, verified.State)
	assert.True(t, verified.OperatorAck)
	assert.NotNil(t, verified.WitnessArtifact)
	assert.False(t, verified.VerifiedAt.IsZero())
}

func TestVerifyChecksWitnessIdentity(t *testing.T) {
	verifier := &stubWitnessVerifier{verified: map[string]bool{"witness@example.com": true}}
	svc := newTestService(t, WithWitnessVerifier(verifier))
	appointment := scheduleAppointment(t, svc)
	docID := attachPendingDocument(t, svc, appointment.ID)
	ctx := context.Background()

	_, err := svc.VerifyDocument(ctx, appointment.ID, docID, true, drawnArtifact(t), "stranger@example.com")
	assert.ErrorIs(t, err, ErrWitnessNotVerified)

	_, err = svc.VerifyDocument(ctx, appointment.ID, docID, true, drawnArtifact(t), "witness@example.com")
	require.NoError(t, err)
}

func TestVerifyRejectsUnknownDocument(t *testing.T) {
	svc := newTestService(t)
	appointment := scheduleAppointment(t, svc)

	_, err := svc.VerifyDocument(context.Background(), appointment.ID, uuid.New(), true, drawnArtifact(t), "")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestGetUnknownAppointment(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestListReturnsCopies(t *testing.T) {
	svc := newTestService(t)
	appointment := scheduleAppointment(t, svc)
	ctx := context.Background()

	listed, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)

	listed[0].ClientName = "mutated"
	reloaded, err := svc.Get(ctx, appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", reloaded.ClientName)
}
