package otp

import "time"

// State is the verifier state machine position for one subject.
type State string

const (
	StateUnverified State = "unverified"
	StateOTPSent    State = "otp_sent"
	StateVerified   State = "verified"
)

// Challenge is one in-flight identity verification: an ID number that was
// presented plus the code that must come back. Keyed by the party being
// verified, not by the ID number, so two parties may share a household ID
// without colliding.
type Challenge struct {
	SubjectKey string    `json:"subject_key"`
	IDNumber   string    `json:"id_number"`
	Address    string    `json:"address"`
	Code       string    `json:"code"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	IssuedAt   time.Time `json:"issued_at"`
	// ExpiresAt is zero when the deployment runs without challenge expiry.
	ExpiresAt  time.Time `json:"expires_at"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Expired reports whether the challenge has passed its deadline.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}
