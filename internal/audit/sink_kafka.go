package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by document so a
// consumer sees each document's history in order.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

type kafkaEvent struct {
	DocumentID string `json:"document_id"`
	Actor      string `json:"actor,omitempty"`
	Action     string `json:"action"`
	Device     string `json:"device,omitempty"`
	ClientIP   string `json:"client_ip,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaEvent{
		DocumentID: event.DocumentID.String(),
		Actor:      event.Actor,
		Action:     string(event.Action),
		Device:     event.Device,
		ClientIP:   event.ClientIP,
		OccurredAt: event.OccurredAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.DocumentID.String()),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
