package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/interfaces"
)

// payloadField is the single stream entry field carrying the JSON document
const payloadField = "payload"

const defaultBlock = 5 * time.Second

// Client is a Redis streams client implementing the bus contract all three
// binaries share
type Client struct {
	rdb    *redis.Client
	logger arbor.ILogger
}

// NewClient connects to Redis from a URL (redis://host:port/db)
func NewClient(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	// One retry after the automatic reconnect keeps transient connection
	// drops invisible to callers
	opts.MaxRetries = 1

	return &Client{
		rdb:    redis.NewClient(opts),
		logger: common.GetLogger(),
	}, nil
}

// EnsureGroup creates the consumer group on each stream, creating missing
// streams along the way. A group that already exists is not an error.
func (c *Client) EnsureGroup(ctx context.Context, group string, streams ...string) error {
	for _, stream := range streams {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

// Publish appends one message to a stream
func (c *Client) Publish(ctx context.Context, stream string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", stream, err)
	}

	if err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(data)},
	}).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}

// PublishBatch appends messages to a stream through one pipeline round trip
func (c *Client) PublishBatch(ctx context.Context, stream string, payloads []any) error {
	if len(payloads) == 0 {
		return nil
	}

	pipe := c.rdb.Pipeline()
	for _, payload := range payloads {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", stream, err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			Values: map[string]any{payloadField: string(data)},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd batch of %d to %s: %w", len(payloads), stream, err)
	}
	return nil
}

// ReadGroup reads up to count new messages for the consumer across the
// given streams, blocking up to block when nothing is pending. A missing
// group (e.g. after a Redis flush) is recreated and an empty read returned
// so the caller's loop just polls again.
func (c *Client) ReadGroup(ctx context.Context, group, consumer string, count int, block time.Duration, streams ...string) ([]interfaces.QueueMessage, error) {
	if block <= 0 {
		block = defaultBlock
	}

	// XREADGROUP wants stream names followed by one ">" cursor per stream
	args := make([]string, 0, len(streams)*2)
	args = append(args, streams...)
	for range streams {
		args = append(args, ">")
	}

	result, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if isNoGroup(err) {
			c.logger.Warn().Str("group", group).Msg("Consumer group missing, recreating")
			if err := c.EnsureGroup(ctx, group, streams...); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup %s: %w", group, err)
	}

	var messages []interfaces.QueueMessage
	for _, streamResult := range result {
		for _, entry := range streamResult.Messages {
			payload, ok := entry.Values[payloadField].(string)
			if !ok {
				c.logger.Warn().
					Str("stream", streamResult.Stream).
					Str("message_id", entry.ID).
					Msg("Stream entry without payload field, acking and skipping")
				_ = c.Ack(ctx, streamResult.Stream, group, entry.ID)
				continue
			}
			messages = append(messages, interfaces.QueueMessage{
				Stream:  streamResult.Stream,
				ID:      entry.ID,
				Payload: []byte(payload),
			})
		}
	}
	return messages, nil
}

// Ack acknowledges processed messages on a stream
func (c *Client) Ack(ctx context.Context, stream, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, stream, group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("xack %s: %w", stream, err)
	}
	return nil
}

// Ping verifies connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}
