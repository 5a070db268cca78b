package vapid

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbarradev-debug/divisapp-sub000/pkg/logger"
)

// DefaultRedisPrefix namespaces token keys.
const DefaultRedisPrefix = "vapid:token:"

// RedisCache shares tokens between replicas through Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithRedisLogger sets the logger used to report Redis failures.
func WithRedisLogger(l *slog.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewRedisCache creates a cache backed by client.
func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: DefaultRedisPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get loads a token. Redis errors and undecodable values are misses.
func (c *RedisCache) Get(ctx context.Context, key string) (Token, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "vapid token cache read failed",
				logger.Component("vapid"),
				logger.Error(err),
			)
		}
		return Token{}, false
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "vapid token cache entry is corrupt",
			logger.Component("vapid"),
			logger.Error(err),
		)
		return Token{}, false
	}
	return token, true
}

// Set stores token until it expires.
func (c *RedisCache) Set(ctx context.Context, key string, token Token) {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(token)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "vapid token cache write failed",
			logger.Component("vapid"),
			logger.Error(err),
		)
	}
}
