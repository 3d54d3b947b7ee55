package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Keyer is implemented by payloads that carry a natural partition key.
type Keyer interface {
	EventKey() string
}

// Envelope is the JSON body written to Kafka for every forwarded event.
type Envelope struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurredAt"`
	Payload    any       `json:"payload"`
}

type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// KafkaForwarderConfig holds connection settings for the forwarder.
type KafkaForwarderConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaForwarder republishes local bus events to a Kafka topic. Produce is
// asynchronous; delivery failures are logged.
type KafkaForwarder struct {
	client producer
	topic  string
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewKafkaForwarder(ctx context.Context, cfg KafkaForwarderConfig, logger *zap.SugaredLogger) (*KafkaForwarder, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "service-task"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}
	return newKafkaForwarder(client, cfg.Topic, logger), nil
}

func newKafkaForwarder(client producer, topic string, logger *zap.SugaredLogger) *KafkaForwarder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &KafkaForwarder{client: client, topic: topic, logger: logger, now: time.Now}
}

// Attach subscribes the forwarder to every named event on bus.
func (f *KafkaForwarder) Attach(bus Bus, names ...string) {
	for _, name := range names {
		bus.Subscribe(name, f.handler(name))
	}
}

func (f *KafkaForwarder) handler(name string) Handler {
	return func(ctx context.Context, payload any) error {
		rec, err := f.record(name, payload)
		if err != nil {
			return err
		}
		// the request context ends before the broker acks
		f.client.Produce(context.WithoutCancel(ctx), rec, func(r *kgo.Record, err error) {
			if err != nil {
				f.logger.Warnw("kafka produce failed", "event", name, "topic", r.Topic, "err", err)
			}
		})
		return nil
	}
}

func (f *KafkaForwarder) record(name string, payload any) (*kgo.Record, error) {
	id := uuid.NewString()
	body, err := json.Marshal(Envelope{
		ID:         id,
		Name:       name,
		OccurredAt: f.now().UTC(),
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", name, err)
	}
	rec := &kgo.Record{
		Topic: f.topic,
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(id)},
			{Key: "event_name", Value: []byte(name)},
		},
	}
	if k, ok := payload.(Keyer); ok {
		rec.Key = []byte(k.EventKey())
	}
	return rec, nil
}

func (f *KafkaForwarder) Close() {
	f.client.Close()
}
