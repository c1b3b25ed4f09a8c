// Package audit records the who/when/where of every signing action so a
// completed document carries a reviewable history.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"paraph/pkg/requestcontext"
)

// Store persists audit events. Append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]Event, error)
}

// Sink receives a best-effort copy of every event, e.g. a Kafka topic.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. The primary store write is
// authoritative; sink failures are logged and do not fail the emitting
// operation.
type Publisher struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger
}

// Option configures the publisher.
type Option func(*Publisher)

func WithSink(sink Sink) Option {
	return func(p *Publisher) { p.sinks = append(p.sinks, sink) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit records one event. Timestamp, device, and client address are filled
// from the request context when the caller leaves them empty.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = requestcontext.Now(ctx)
	}
	if event.Device == "" {
		event.Device = requestcontext.Device(ctx)
	}
	if event.ClientIP == "" {
		event.ClientIP = requestcontext.ClientIP(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Append(ctx, event); err != nil {
			p.logger.WarnContext(ctx, "audit sink append failed",
				"action", event.Action, "document_id", event.DocumentID, "error", err)
		}
	}
	return nil
}

// Trail returns the recorded history for one document, oldest first.
func (p *Publisher) Trail(ctx context.Context, documentID uuid.UUID) ([]Event, error) {
	return p.store.ListByDocument(ctx, documentID)
}
