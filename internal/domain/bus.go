package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" koanf:"type"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" koanf:"channel_buffer_size"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" koanf:"nats_url"`
	NATSToken         string `json:"-" koanf:"nats_token"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" koanf:"nats_max_reconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" koanf:"nats_reconnect_wait"` // seconds

	// NATSQueueGroup spreads submitted batches over every replica's worker.
	NATSQueueGroup string `json:"natsQueueGroup" koanf:"nats_queue_group"`
}

// Topic names for the scoring pipeline.
const (
	TopicBatchSubmitted = "fraudscore.batch.submitted"
	TopicBatchScored    = "fraudscore.batch.scored"
	TopicAlert          = "fraudscore.alert"
	TopicModelReloaded  = "fraudscore.model.reloaded"
)

// BatchSubmission is the payload of TopicBatchSubmitted.
type BatchSubmission struct {
	BatchID   string  `json:"batchId"`
	UserEmail string  `json:"userEmail"`
	Threshold float64 `json:"threshold"`
	TraceID   string  `json:"traceId,omitempty"`
	CSV       []byte  `json:"csv"`
}

// BatchScoredEvent is the payload of TopicBatchScored and TopicAlert.
type BatchScoredEvent struct {
	BatchID    string  `json:"batchId"`
	UserEmail  string  `json:"userEmail"`
	BundleID   string  `json:"bundleId"`
	Threshold  float64 `json:"threshold"`
	Total      int     `json:"total"`
	FraudCount int     `json:"fraudCount"`
	Error      string  `json:"error,omitempty"`
}
