package interfaces

import (
	"context"
	"time"
)

// QueueMessage is one entry read from a stream
type QueueMessage struct {
	Stream  string
	ID      string
	Payload []byte
}

// QueueClient is the Redis streams surface shared by the orchestrator,
// workers and the db manager. Messages carry a single JSON payload field.
type QueueClient interface {
	// EnsureGroup creates the consumer group on each stream, creating the
	// streams as needed. Existing groups are not an error.
	EnsureGroup(ctx context.Context, group string, streams ...string) error

	// Publish appends one message to a stream
	Publish(ctx context.Context, stream string, payload any) error

	// PublishBatch appends messages to a stream in one pipelined call
	PublishBatch(ctx context.Context, stream string, payloads []any) error

	// ReadGroup reads up to count pending messages for the consumer,
	// blocking up to block when none are available. A missing group is
	// recreated and an empty read returned.
	ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, streams ...string) ([]QueueMessage, error)

	// Ack acknowledges processed messages on a stream
	Ack(ctx context.Context, stream, group string, messageIDs ...string) error

	// Ping verifies connectivity
	Ping(ctx context.Context) error

	Close() error
}
