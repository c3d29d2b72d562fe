// Package events publishes fulfillment lifecycle events so downstream
// consumers (notifications, reconciliation) can react without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topics for fulfillment lifecycle events
const (
	TopicFulfillmentCompleted = "fulfillment.completed"
	TopicFulfillmentDegraded  = "fulfillment.degraded"
	TopicFulfillmentFailed    = "fulfillment.failed"
)

// FulfillmentEvent is the payload published on a terminal saga outcome
type FulfillmentEvent struct {
	EventType        string    `json:"event_type"`
	BookingID        string    `json:"booking_id"`
	PaymentID        string    `json:"payment_id,omitempty"`
	BookingConfirmed bool      `json:"booking_confirmed"`
	TicketsIssued    int       `json:"tickets_issued"`
	TicketsFailed    int       `json:"tickets_failed"`
	Reason           string    `json:"reason,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Topic maps the event to its Kafka topic
func (e *FulfillmentEvent) Topic() string {
	switch e.EventType {
	case "degraded":
		return TopicFulfillmentDegraded
	case "failed", "aborted":
		return TopicFulfillmentFailed
	default:
		return TopicFulfillmentCompleted
	}
}

// Publisher publishes fulfillment events
type Publisher interface {
	Publish(ctx context.Context, event *FulfillmentEvent) error
	Close()
}

// KafkaPublisherConfig holds configuration for the Kafka publisher
type KafkaPublisherConfig struct {
	Brokers  []string
	ClientID string
	Logger   *zap.Logger
}

// KafkaPublisher publishes events to Kafka/Redpanda via franz-go
type KafkaPublisher struct {
	client *kgo.Client
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher and verifies broker connectivity
func NewKafkaPublisher(ctx context.Context, cfg *KafkaPublisherConfig) (*KafkaPublisher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping kafka: %w", err)
	}

	return &KafkaPublisher{client: client, logger: logger}, nil
}

// Publish produces the event synchronously, keyed by booking id so events
// for one booking stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, event *FulfillmentEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fulfillment event: %w", err)
	}

	record := &kgo.Record{
		Topic: event.Topic(),
		Key:   []byte(event.BookingID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce fulfillment event: %w", err)
	}

	p.logger.Debug("fulfillment event published",
		zap.String("topic", record.Topic),
		zap.String("booking_id", event.BookingID))
	return nil
}

// Close flushes and closes the underlying client
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

// NoopPublisher drops all events; used when Kafka is disabled and in tests
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event *FulfillmentEvent) error { return nil }
func (NoopPublisher) Close()                                                     {}
