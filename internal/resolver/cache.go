package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/authgate/internal/domain"
	"github.com/xela07ax/authgate/internal/infra"
)

// RedisCache — L2 кэш принципалов, общий для всех инстансов. Записи живут ttl.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, subject string) (*domain.Principal, error) {
	data, err := c.rdb.Get(ctx, infra.PrincipalCacheKey(subject)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("principal cache: get %s: %w", subject, err)
	}

	var p domain.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("principal cache: decode %s: %w", subject, err)
	}
	return &p, nil
}

func (c *RedisCache) Set(ctx context.Context, subject string, p *domain.Principal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, infra.PrincipalCacheKey(subject), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("principal cache: set %s: %w", subject, err)
	}
	return nil
}

// Evict удаляет запись, например после смены роли пользователя.
func (c *RedisCache) Evict(ctx context.Context, subject string) error {
	return c.rdb.Del(ctx, infra.PrincipalCacheKey(subject)).Err()
}
