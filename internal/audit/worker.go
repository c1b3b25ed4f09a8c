package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const workerInboxSize = 256

// Worker decouples sink delivery from the request path. It implements Sink,
// so the publisher queues events through Append while Run fans them out to
// the real destinations in the background.
type Worker struct {
	inbox  chan Event
	sinks  []Sink
	logger *slog.Logger
}

func NewWorker(logger *slog.Logger, sinks ...Sink) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		inbox:  make(chan Event, workerInboxSize),
		sinks:  sinks,
		logger: logger,
	}
}

// Append queues the event for background delivery. A full inbox drops the
// copy; the publisher's store write remains the authoritative record.
func (w *Worker) Append(_ context.Context, event Event) error {
	select {
	case w.inbox <- event:
		return nil
	default:
		return errors.New("audit worker inbox full")
	}
}

// Run delivers queued events until ctx is cancelled, then drains whatever is
// still in the inbox before returning.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case event := <-w.inbox:
			w.deliver(event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.deliver(event)
		default:
			return
		}
	}
}

func (w *Worker) deliver(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sink := range w.sinks {
		if err := sink.Append(ctx, event); err != nil {
			w.logger.Warn("audit sink append failed",
				"action", event.Action, "document_id", event.DocumentID, "error", err)
		}
	}
}
