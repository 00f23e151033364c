package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking. The monitor uses it to serialize
// trigger submissions for the same account across replicas; the guardian
// itself never relies on it for correctness, since a losing trigger simply
// re-reads fresh state and fails with PolicyNotBreachedError.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// RateLimiter bounds how often an action may run. The trigger endpoint is
// callable by anyone, so the API applies a per-client limit in front of it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// MarginCache holds the most recent margin snapshot per account so API
// reads do not hit the chain on every request. Entries expire on their own;
// a miss is reported as (nil, false, nil), never as an error.
type MarginCache interface {
	SetSnapshot(ctx context.Context, acct Account, payload []byte, ttl time.Duration) error
	GetSnapshot(ctx context.Context, acct Account) ([]byte, bool, error)
}

// SignalBus provides pub/sub fan-out of margin snapshots and guardian
// events, plus durable streams for consumers that cannot afford to miss a
// rebalance notification.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
