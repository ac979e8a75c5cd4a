// Package cache is a small JSON read-through layer on Redis, used for the
// display copies of derived balances. The transaction log stays the source of
// truth; a cache miss or a Redis outage only costs a recomputation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
		log:    slog.With("component", "cache"),
	}
}

func balanceKey(walletID uuid.UUID) string {
	return fmt.Sprintf("balance:v1:%s", walletID)
}

// GetBalances returns the cached balances for the wallet. A miss returns
// (false, nil); Redis errors are degraded to misses.
func (c *Cache) GetBalances(ctx context.Context, walletID uuid.UUID, out any) (bool, error) {
	data, err := c.client.Get(ctx, balanceKey(walletID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		c.log.Warn("cache read failed", "walletId", walletID, "error", err)

		return false, nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("couldn't unmarshal cached balances: %w", err)
	}

	return true, nil
}

func (c *Cache) SetBalances(ctx context.Context, walletID uuid.UUID, balances any) {
	data, err := json.Marshal(balances)
	if err != nil {
		c.log.Error("couldn't marshal balances", "walletId", walletID, "error", err)
		return
	}

	if err := c.client.Set(ctx, balanceKey(walletID), data, c.ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "walletId", walletID, "error", err)
	}
}

// InvalidateBalances drops the cached balances after anything that moves
// money on the wallet.
func (c *Cache) InvalidateBalances(ctx context.Context, walletIDs ...uuid.UUID) {
	keys := make([]string, len(walletIDs))
	for i, id := range walletIDs {
		keys[i] = balanceKey(id)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache invalidation failed", "wallets", walletIDs, "error", err)
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
