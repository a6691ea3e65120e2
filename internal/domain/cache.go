package domain

import (
	"context"
	"time"
)

// RateLimiter provides distributed rate limiting, used by the HTTP control
// plane to limit requests per client IP across process instances.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed locking. It backs a fast-read mirror of
// the SQL autopilot lease (AutopilotStore.TryAcquireAutopilotLock): the SQL
// lease stays authoritative, but a scheduler instance checks the mirror
// first so contention between instances is usually rejected in Redis
// instead of costing a round trip to Postgres on every tick.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// TriggerBus lets an external collaborator (the HTTP control plane) wake
// the scheduler for an immediate cycle without waiting for the next tick.
// PublishEvent/ReadEvents add a durable stream API; the scheduler itself
// publishes nothing to it.
type TriggerBus interface {
	PublishTrigger(ctx context.Context, tokenId TokenId) error
	SubscribeTriggers(ctx context.Context) (<-chan TokenId, error)
	PublishEvent(ctx context.Context, stream string, payload []byte) error
	ReadEvents(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
