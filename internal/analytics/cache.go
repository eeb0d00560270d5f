package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "analytics:version"
	bumpChannel     = "stock.bump"
)

// Cache stores report results under keys that embed a global version. Bumping the
// version after stock or order changes orphans every older entry; TTL reclaims them.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{client: client, ttl: ttl, logger: logger}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX keeps a concurrent Bump from being overwritten.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, base string) (string, error) {
	if !c.enabled() {
		return base, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", base, ver), nil
}

// Fetch returns the cached value for base or populates it with loader. Redis failures
// degrade to calling loader directly.
func Fetch[T any](ctx context.Context, c *Cache, base string, loader func(context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return loader(ctx)
	}
	key, err := c.BuildKey(ctx, base)
	if err != nil {
		c.logger.Warn("analytics cache version", slog.Any("error", err))
		return loader(ctx)
	}
	var out T
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(payload, &out); err == nil {
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("analytics cache read", slog.String("key", key), slog.Any("error", err))
	}

	out, err = loader(ctx)
	if err != nil {
		return out, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return out, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("analytics cache write", slog.String("key", key), slog.Any("error", err))
	}
	return out, nil
}

// Bump invalidates the cache by incrementing the global version and publishing it.
func (c *Cache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other nodes sharing a
// replica, until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context) {
	if !c.enabled() {
		return
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				current, err := c.Version(ctx)
				if err == nil && current >= ver {
					continue
				}
				if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
					c.logger.Warn("analytics cache follow bump", slog.Any("error", err))
				}
			}
		}
	}()
}

func keySummary(from, to time.Time) string {
	return strings.Join([]string{"analytics", "summary", from.Format("2006-01-02"), to.Format("2006-01-02")}, ":")
}

func keyLowStock(limit int) string {
	return strings.Join([]string{"analytics", "low_stock", strconv.Itoa(limit)}, ":")
}
