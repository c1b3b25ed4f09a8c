package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"paraph/pkg/platform/sentinel"
)

// PostgresStore persists token records in the verification_tokens table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, record *Record) error {
	query := `
		INSERT INTO verification_tokens (id, document_id, recipient_id, secret_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.DocumentID, record.RecipientID,
		record.SecretHash, record.IssuedAt, nullableTime(record.ExpiresAt))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id uuid.UUID) (*Record, error) {
	query := `
		SELECT id, document_id, recipient_id, secret_hash, issued_at, expires_at, consumed_at
		FROM verification_tokens
		WHERE id = $1
	`
	var record Record
	var expiresAt, consumedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID, &record.DocumentID, &record.RecipientID,
		&record.SecretHash, &record.IssuedAt, &expiresAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select token: %w", err)
	}
	if expiresAt.Valid {
		record.ExpiresAt = expiresAt.Time
	}
	if consumedAt.Valid {
		record.ConsumedAt = consumedAt.Time
	}
	return &record, nil
}

// MarkConsumed claims the token atomically; the WHERE clause makes the
// exactly-once guarantee hold across concurrent submissions.
func (s *PostgresStore) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, at)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}
	if affected == 0 {
		// Distinguish missing from already-consumed for the caller.
		if _, findErr := s.Find(ctx, id); findErr != nil {
			return findErr
		}
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("delete document tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete document tokens: %w", err)
	}
	return int(affected), nil
}

func nullableTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
