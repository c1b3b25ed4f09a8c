package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"paraph/pkg/requestcontext"
)

// KafkaNotifier hands deliveries to a downstream sender through a Kafka
// topic, keyed by address so retries for one recipient stay ordered.
type KafkaNotifier struct {
	client *kgo.Client
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) (*KafkaNotifier, error) {
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaNotifier{client: client, topic: topic}, nil
}

type delivery struct {
	Address   string `json:"address"`
	Payload   string `json:"payload"`
	QueuedAt  string `json:"queued_at"`
	RequestID string `json:"request_id,omitempty"`
}

func (n *KafkaNotifier) Notify(ctx context.Context, address, payload string) error {
	value, err := json.Marshal(delivery{
		Address:   address,
		Payload:   payload,
		QueuedAt:  requestcontext.Now(ctx).UTC().Format(time.RFC3339Nano),
		RequestID: requestcontext.RequestID(ctx),
	})
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	record := &kgo.Record{Topic: n.topic, Key: []byte(address), Value: value}
	if err := n.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce delivery: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() {
	n.client.Close()
}
