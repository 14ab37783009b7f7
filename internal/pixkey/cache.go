package pixkey

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "pixkey:summary:"

// Cache is a read-through Redis cache in front of another Directory.
// Redis errors are logged and never fail a lookup.
type Cache struct {
	next   Directory
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCache(next Directory, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *Cache) Lookup(ctx context.Context, id string) (Summary, error) {
	key := keyPrefix + id

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var s Summary
		if err := json.Unmarshal(data, &s); err == nil {
			return s, nil
		}
		c.logger.Warn("pixkey_cache_corrupt", zap.String("pixkey_id", id))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("pixkey_cache_get_failed", zap.String("pixkey_id", id), zap.Error(err))
	}

	s, err := c.next.Lookup(ctx, id)
	if err != nil {
		return Summary{}, err
	}

	data, err = json.Marshal(s)
	if err != nil {
		return s, nil
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("pixkey_cache_set_failed", zap.String("pixkey_id", id), zap.Error(err))
	}
	return s, nil
}
