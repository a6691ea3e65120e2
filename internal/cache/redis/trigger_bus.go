package redis

import (
	"encoding/json"
	"fmt"
	"strconv"

	"context"

	"github.com/alanyoungcy/agentrunner/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

const triggerChannel = "agentrunner:triggers"

// TriggerBus implements domain.TriggerBus using Redis Pub/Sub for ephemeral
// immediate-trigger wakeups and Redis Streams for durable, ordered event
// delivery. The stream helpers, including PublishNotification for
// NotificationEvents, are not called by the scheduler.
type TriggerBus struct {
	rdb *redis.Client
}

// NewTriggerBus creates a TriggerBus backed by the given Client.
func NewTriggerBus(c *Client) *TriggerBus {
	return &TriggerBus{rdb: c.Underlying()}
}

// PublishTrigger asks the scheduler to run tokenId's cycle immediately,
// bypassing its next scheduled tick.
func (tb *TriggerBus) PublishTrigger(ctx context.Context, tokenId domain.TokenId) error {
	payload := strconv.FormatInt(int64(tokenId), 10)
	if err := tb.rdb.Publish(ctx, triggerChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish trigger for token %d: %w", tokenId, err)
	}
	return nil
}

// SubscribeTriggers returns a channel of token IDs requested for immediate
// processing. The subscription closes when ctx is cancelled.
func (tb *TriggerBus) SubscribeTriggers(ctx context.Context) (<-chan domain.TokenId, error) {
	pubsub := tb.rdb.Subscribe(ctx, triggerChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe triggers: %w", err)
	}

	out := make(chan domain.TokenId, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				n, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				select {
				case out <- domain.TokenId(n):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// PublishEvent appends a JSON-marshalable payload to a Redis stream using
// XADD with an approximate MAXLEN of 10,000 entries for automatic trimming.
func (tb *TriggerBus) PublishEvent(ctx context.Context, stream string, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := tb.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// ReadEvents reads up to count messages from a Redis stream starting after
// lastID. Use "0" or "0-0" to read from the beginning, or "$" for new
// messages only. Returns an empty slice (not an error) when none available.
func (tb *TriggerBus) ReadEvents(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	args := &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
	}

	results, err := tb.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var messages []domain.StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}

			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}

			messages = append(messages, domain.StreamMessage{
				ID:      msg.ID,
				Payload: data,
			})
		}
	}

	return messages, nil
}

// PublishNotification is a convenience wrapper that JSON-marshals a
// NotificationEvent onto the "agentrunner:notifications" stream.
func (tb *TriggerBus) PublishNotification(ctx context.Context, ev domain.NotificationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal notification event: %w", err)
	}
	return tb.PublishEvent(ctx, "agentrunner:notifications", data)
}

// Compile-time interface check.
var _ domain.TriggerBus = (*TriggerBus)(nil)
