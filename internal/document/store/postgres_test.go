package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paraph/internal/document/models"
	"paraph/pkg/platform/sentinel"
)

func TestPostgresCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgres(db)
	doc, err := models.NewDocument(uuid.New(), "engagement letter", time.Now())
	require.NoError(t, err)
	doc.AddSigner(models.Signer{ID: uuid.New(), Name: "Ada", Email: "ada@example.com"}, time.Now())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO signers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Create(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgres(db)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, content_ref").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "content_ref", "mime_kind", "status", "deadline", "created_at", "updated_at",
		}))

	_, err = store.FindByID(context.Background(), id)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFindLoadsParties(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgres(db)
	docID := uuid.New()
	signerID := uuid.New()
	recipientID := uuid.New()
	now := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT id, name, content_ref").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "content_ref", "mime_kind", "status", "deadline", "created_at", "updated_at",
		}).AddRow(docID, "engagement letter", "", "", "in_progress", nil, now, now))
	mock.ExpectQuery("FROM signers").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "position", "name", "email", "identity_method", "identity_verified",
			"artifact_mode", "artifact_payload", "artifact_style", "signed_at", "declined_at",
		}).AddRow(signerID, 1, "Ada", "ada@example.com", "otp", true, "type", "Ada", nil, now, nil))
	mock.ExpectQuery("FROM recipients").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "position", "name", "email",
			"artifact_mode", "artifact_payload", "artifact_style", "signed_at",
		}).AddRow(recipientID, 2, "Grace", "grace@example.com", nil, nil, nil, nil))

	doc, err := store.FindByID(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, doc.Status)
	require.Len(t, doc.Signers, 1)
	require.NotNil(t, doc.Signers[0].Artifact)
	assert.Equal(t, "Ada", doc.Signers[0].Artifact.Payload)
	assert.True(t, doc.Signers[0].Signed())
	require.Len(t, doc.Recipients, 1)
	assert.Nil(t, doc.Recipients[0].Artifact)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgres(db)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, store.Delete(context.Background(), id), sentinel.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
