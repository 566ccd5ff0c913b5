package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"apotekpos/backend/internal/domain"
)

type RedisSaleListCache struct {
	client *redis.Client
}

func NewRedisSaleListCache(addr string, password string, db int) *RedisSaleListCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSaleListCache{client: client}
}

func (c *RedisSaleListCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSaleListCache) Close() error {
	return c.client.Close()
}

func (c *RedisSaleListCache) GetSales(ctx context.Context, key string) ([]domain.Sale, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var sales []domain.Sale
	if err := json.Unmarshal([]byte(val), &sales); err != nil {
		return nil, false, err
	}
	return sales, true, nil
}

func (c *RedisSaleListCache) SetSales(ctx context.Context, key string, sales []domain.Sale, ttl time.Duration) error {
	if sales == nil {
		sales = []domain.Sale{}
	}
	payload, err := json.Marshal(sales)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSaleListCache) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}
