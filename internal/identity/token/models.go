package token

import (
	"time"

	"github.com/google/uuid"
)

// Record is an issued verification token at rest. Only the bcrypt hash of the
// secret is stored; the cleartext exists once, inside the invitation.
type Record struct {
	ID          uuid.UUID
	DocumentID  uuid.UUID
	RecipientID uuid.UUID
	SecretHash  string
	IssuedAt    time.Time
	// ExpiresAt is zero when tokens do not expire (the reference behavior).
	ExpiresAt  time.Time
	ConsumedAt time.Time
}

// Consumed reports whether the token has already been used to sign.
func (r *Record) Consumed() bool {
	return !r.ConsumedAt.IsZero()
}

// Expired reports whether the token has passed its deadline.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
