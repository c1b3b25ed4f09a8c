// Package notify delivers outbound messages to signing parties: one-time
// codes to local parties and invitation links to remote recipients.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers a message to an address. Implementations decide the
// channel; addresses are emails or phone numbers depending on the party.
type Notifier interface {
	Notify(ctx context.Context, address, payload string) error
}

// LogNotifier writes deliveries to the log instead of sending them. Used in
// development and tests.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, address, payload string) error {
	n.logger.InfoContext(ctx, "notification delivered", "address", address, "payload", payload)
	return nil
}
