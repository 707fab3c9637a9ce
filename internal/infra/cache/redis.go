package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"channel-insights/internal/infra/metrics"
)

type onceClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisOnce реализует domain.OnceStore через Redis.
type RedisOnce struct {
	client onceClient
	prefix string
}

// NewRedisOnce создаёт хранилище отметок; prefix добавляется ко всем ключам.
func NewRedisOnce(client *redis.Client, prefix string) *RedisOnce {
	return &RedisOnce{client: client, prefix: prefix}
}

// Once выполняет fn, если ключ ещё не задан. При ошибке fn отметка снимается,
// чтобы следующий вызов повторил попытку.
func (c *RedisOnce) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	full := c.prefix + key
	start := time.Now()
	ok, err := c.client.SetNX(ctx, full, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "once", start, err)
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", full, err)
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		if delErr := c.client.Del(context.WithoutCancel(ctx), full).Err(); delErr != nil {
			return fmt.Errorf("%w (снять отметку не удалось: %v)", err, delErr)
		}
		return err
	}
	return nil
}
