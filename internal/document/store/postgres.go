package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"paraph/internal/document/models"
	"paraph/internal/signature/capture"
	"paraph/pkg/platform/sentinel"
)

// Postgres persists documents across the documents, signers, and recipients
// tables.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, doc *models.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO documents (id, name, content_ref, mime_kind, status, deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = tx.ExecContext(ctx, query,
		doc.ID, doc.Name, doc.ContentRef, doc.MimeKind, string(doc.Status),
		nullableTime(doc.Deadline), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert document: %w", err)
	}
	if err := saveParties(ctx, tx, doc); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return loadDocument(ctx, s.db, id, false)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	out := make([]*models.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := loadDocument(ctx, s.db, id, false)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Execute loads the document under a row lock, runs validate then mutate,
// and writes the result back in the same transaction.
func (s *Postgres) Execute(ctx context.Context, id uuid.UUID,
	validate func(*models.Document) error, mutate func(*models.Document)) (*models.Document, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin execute: %w", err)
	}
	defer tx.Rollback()

	doc, err := loadDocument(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := validate(doc); err != nil {
		return nil, err
	}
	mutate(doc)

	query := `
		UPDATE documents SET name = $2, content_ref = $3, mime_kind = $4,
			status = $5, deadline = $6, updated_at = $7
		WHERE id = $1
	`
	_, err = tx.ExecContext(ctx, query,
		doc.ID, doc.Name, doc.ContentRef, doc.MimeKind, string(doc.Status),
		nullableTime(doc.Deadline), doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}

	// Parties are few (capped); rewriting them keeps positions and artifacts
	// consistent without per-field diffing.
	if _, err := tx.ExecContext(ctx, `DELETE FROM signers WHERE document_id = $1`, doc.ID); err != nil {
		return nil, fmt.Errorf("clear signers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE document_id = $1`, doc.ID); err != nil {
		return nil, fmt.Errorf("clear recipients: %w", err)
	}
	if err := saveParties(ctx, tx, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit execute: %w", err)
	}
	return doc, nil
}

func (s *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadDocument(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*models.Document, error) {
	query := `
		SELECT id, name, content_ref, mime_kind, status, deadline, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var doc models.Document
	var status string
	var deadline sql.NullTime
	err := q.QueryRowContext(ctx, query, id).Scan(
		&doc.ID, &doc.Name, &doc.ContentRef, &doc.MimeKind, &status,
		&deadline, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	doc.Status = models.Status(status)
	if deadline.Valid {
		doc.Deadline = deadline.Time
	}

	if err := loadSigners(ctx, q, &doc); err != nil {
		return nil, err
	}
	if err := loadRecipients(ctx, q, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func loadSigners(ctx context.Context, q querier, doc *models.Document) error {
	query := `
		SELECT id, position, name, email, identity_method, identity_verified,
			artifact_mode, artifact_payload, artifact_style, signed_at, declined_at
		FROM signers
		WHERE document_id = $1
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, query, doc.ID)
	if err != nil {
		return fmt.Errorf("query signers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var signer models.Signer
		var method string
		var mode, payload, style sql.NullString
		var signedAt, declinedAt sql.NullTime
		err := rows.Scan(&signer.ID, &signer.Position, &signer.Name, &signer.Email,
			&method, &signer.IdentityVerified, &mode, &payload, &style, &signedAt, &declinedAt)
		if err != nil {
			return fmt.Errorf("scan signer: %w", err)
		}
		signer.IdentityMethod = models.IdentityMethod(method)
		signer.Artifact = artifactFromColumns(mode, payload, style)
		if signedAt.Valid {
			signer.SignedAt = signedAt.Time
		}
		if declinedAt.Valid {
			signer.DeclinedAt = declinedAt.Time
		}
		doc.Signers = append(doc.Signers, signer)
	}
	return rows.Err()
}

func loadRecipients(ctx context.Context, q querier, doc *models.Document) error {
	query := `
		SELECT id, position, name, email,
			artifact_mode, artifact_payload, artifact_style, signed_at
		FROM recipients
		WHERE document_id = $1
		ORDER BY position
	`
	rows, err := q.QueryContext(ctx, query, doc.ID)
	if err != nil {
		return fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var recipient models.Recipient
		var mode, payload, style sql.NullString
		var signedAt sql.NullTime
		err := rows.Scan(&recipient.ID, &recipient.Position, &recipient.Name,
			&recipient.Email, &mode, &payload, &style, &signedAt)
		if err != nil {
			return fmt.Errorf("scan recipient: %w", err)
		}
		recipient.Artifact = artifactFromColumns(mode, payload, style)
		if signedAt.Valid {
			recipient.SignedAt = signedAt.Time
		}
		doc.Recipients = append(doc.Recipients, recipient)
	}
	return rows.Err()
}

func saveParties(ctx context.Context, q querier, doc *models.Document) error {
	signerQuery := `
		INSERT INTO signers (id, document_id, position, name, email, identity_method,
			identity_verified, artifact_mode, artifact_payload, artifact_style, signed_at, declined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	for i := range doc.Signers {
		signer := &doc.Signers[i]
		mode, payload, style := artifactColumns(signer.Artifact)
		_, err := q.ExecContext(ctx, signerQuery,
			signer.ID, doc.ID, signer.Position, signer.Name, signer.Email,
			string(signer.IdentityMethod), signer.IdentityVerified,
			mode, payload, style, nullableTime(signer.SignedAt), nullableTime(signer.DeclinedAt))
		if err != nil {
			return fmt.Errorf("insert signer: %w", err)
		}
	}

	recipientQuery := `
		INSERT INTO recipients (id, document_id, position, name, email,
			artifact_mode, artifact_payload, artifact_style, signed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for i := range doc.Recipients {
		recipient := &doc.Recipients[i]
		mode, payload, style := artifactColumns(recipient.Artifact)
		_, err := q.ExecContext(ctx, recipientQuery,
			recipient.ID, doc.ID, recipient.Position, recipient.Name, recipient.Email,
			mode, payload, style, nullableTime(recipient.SignedAt))
		if err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return nil
}

func artifactColumns(artifact *capture.Artifact) (mode, payload, style sql.NullString) {
	if artifact == nil {
		return
	}
	mode = sql.NullString{String: string(artifact.Mode), Valid: true}
	payload = sql.NullString{String: artifact.Payload, Valid: true}
	style = sql.NullString{String: artifact.Style, Valid: artifact.Style != ""}
	return
}

func artifactFromColumns(mode, payload, style sql.NullString) *capture.Artifact {
	if !mode.Valid {
		return nil
	}
	return &capture.Artifact{
		Mode:    capture.Mode(mode.String),
		Payload: payload.String,
		Style:   style.String,
	}
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
