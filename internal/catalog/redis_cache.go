package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"visa-case-tracker/internal/domain"
)

const (
	categoryKeyPrefix = "visa-category:"
	categoryListKey   = "visa-categories"
)

// RedisClient is the subset of *redis.Client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache is a read-through cache in front of another Source. Redis
// failures are logged and bypassed; they never fail a lookup.
type RedisCache struct {
	client RedisClient
	source Source
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisCache(client RedisClient, source Source, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, source: source, ttl: ttl, logger: logger}
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *RedisCache) VisaCategory(ctx context.Context, categoryID string) (domain.VisaCategory, error) {
	key := categoryKeyPrefix + categoryID

	var cached domain.VisaCategory
	if c.lookup(ctx, key, &cached) {
		return cached, nil
	}

	cat, err := c.source.VisaCategory(ctx, categoryID)
	if err != nil {
		return domain.VisaCategory{}, err
	}
	c.store(ctx, key, cat)
	return cat, nil
}

func (c *RedisCache) VisaCategories(ctx context.Context) ([]domain.VisaCategory, error) {
	var cached []domain.VisaCategory
	if c.lookup(ctx, categoryListKey, &cached) {
		return cached, nil
	}

	cats, err := c.source.VisaCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, categoryListKey, cats)
	return cats, nil
}

func (c *RedisCache) lookup(ctx context.Context, key string, out any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("manifest cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("manifest cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *RedisCache) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("manifest cache write failed", zap.String("key", key), zap.Error(err))
	}
}
