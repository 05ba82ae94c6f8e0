package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"crm_syncer/internal/domain"
)

const redisKeyPrefix = "crm_syncer:"

// RedisCache shares access credentials between syncer processes.
type RedisCache struct {
	Client *redis.Client
}

func NewRedisCache(opt *redis.Options) *RedisCache {
	return &RedisCache{Client: redis.NewClient(opt)}
}

func (c *RedisCache) Get(ctx context.Context, key string) (domain.Credential, bool, error) {
	b, err := c.Client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Credential{}, false, nil
	}
	if err != nil {
		return domain.Credential{}, false, fmt.Errorf("redis get: %w", err)
	}

	var cred domain.Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return domain.Credential{}, false, fmt.Errorf("decode credential: %w", err)
	}
	return cred, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, cred domain.Credential, ttl time.Duration) error {
	b, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return c.Client.Set(ctx, redisKeyPrefix+key, b, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.Client.Del(ctx, redisKeyPrefix+key).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}
