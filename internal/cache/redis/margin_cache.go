package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"marginguard/internal/domain"
)

// MarginCache implements domain.MarginCache: the latest margin snapshot for
// each account, keyed by owner and account number, expiring on its own so a
// stalled monitor never serves old numbers forever.
type MarginCache struct {
	rdb *redis.Client
}

// NewMarginCache creates a MarginCache backed by the given Client.
func NewMarginCache(c *Client) *MarginCache {
	return &MarginCache{rdb: c.Underlying()}
}

func snapshotKey(acct domain.Account) string {
	return "marginguard:margin:" + acct.String()
}

// SetSnapshot stores the serialized snapshot for acct with the given TTL.
func (mc *MarginCache) SetSnapshot(ctx context.Context, acct domain.Account, payload []byte, ttl time.Duration) error {
	if err := mc.rdb.Set(ctx, snapshotKey(acct), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set margin snapshot %s: %w", acct.String(), err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for acct, or (nil, false, nil)
// when none is present or it has expired.
func (mc *MarginCache) GetSnapshot(ctx context.Context, acct domain.Account) ([]byte, bool, error) {
	data, err := mc.rdb.Get(ctx, snapshotKey(acct)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis: get margin snapshot %s: %w", acct.String(), err)
	}
	return data, true, nil
}

var _ domain.MarginCache = (*MarginCache)(nil)
