package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paraph/pkg/requestcontext"
)

type failingSink struct{ calls int }

func (s *failingSink) Append(context.Context, Event) error {
	s.calls++
	return errors.New("broker down")
}

func TestEmitFillsContextMetadata(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)

	now := time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.7", "test-agent", "Firefox 120 / Linux")

	documentID := uuid.New()
	require.NoError(t, publisher.Emit(ctx, Event{
		DocumentID: documentID,
		Actor:      "party-1",
		Action:     ActionPartySigned,
	}))

	trail, err := publisher.Trail(ctx, documentID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, now, trail[0].OccurredAt)
	assert.Equal(t, "203.0.113.7", trail[0].ClientIP)
	assert.Equal(t, "Firefox 120 / Linux", trail[0].Device)
}

func TestEmitSurvivesSinkFailure(t *testing.T) {
	store := NewInMemoryStore()
	sink := &failingSink{}
	publisher := NewPublisher(store, WithSink(sink))

	documentID := uuid.New()
	require.NoError(t, publisher.Emit(context.Background(), Event{
		DocumentID: documentID,
		Action:     ActionDocumentSent,
	}))

	assert.Equal(t, 1, sink.calls)
	trail, err := publisher.Trail(context.Background(), documentID)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestTrailScopedToDocument(t *testing.T) {
	store := NewInMemoryStore()
	publisher := NewPublisher(store)
	ctx := context.Background()

	documentID := uuid.New()
	require.NoError(t, publisher.Emit(ctx, Event{DocumentID: documentID, Action: ActionDocumentCreated}))
	require.NoError(t, publisher.Emit(ctx, Event{DocumentID: documentID, Action: ActionPartyAdded}))
	require.NoError(t, publisher.Emit(ctx, Event{DocumentID: uuid.New(), Action: ActionDocumentCreated}))

	trail, err := publisher.Trail(ctx, documentID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ActionDocumentCreated, trail[0].Action)
	assert.Equal(t, ActionPartyAdded, trail[1].Action)
}
