package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names a recorded step in a document's signing history.
type Action string

const (
	ActionDocumentCreated   Action = "document_created"
	ActionDocumentSent      Action = "document_sent"
	ActionDocumentCompleted Action = "document_completed"
	ActionDocumentDeleted   Action = "document_deleted"
	ActionPartyAdded        Action = "party_added"
	ActionPartyRemoved      Action = "party_removed"
	ActionOTPRequested      Action = "otp_requested"
	ActionOTPVerified       Action = "otp_verified"
	ActionPartySigned       Action = "party_signed"
	ActionPartyDeclined     Action = "party_declined"
	ActionTokenIssued       Action = "token_issued"
	ActionTokenRedeemed     Action = "token_redeemed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	DocumentID uuid.UUID
	Actor      string
	Action     Action
	Device     string
	ClientIP   string
	OccurredAt time.Time
}
