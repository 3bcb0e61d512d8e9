package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// RemoteCache is the shared cache tier. It may be unreachable at any
// point; callers treat errors as a silent miss.
type RemoteCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

type redisCache struct {
	log *logger.Logger
	rdb *goredis.Client
}

// NewRedisCache connects to the shared tier. A missing address returns
// (nil, nil): the cache then runs local-only, which is a supported
// degraded mode, not an error.
func NewRedisCache(log *logger.Logger, addr string) (RemoteCache, error) {
	if log == nil {
		return nil, fmt.Errorf("embedding: logger required")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		log.Warn("embedding cache: redis unreachable at startup, continuing local-only", "error", err)
		return nil, nil
	}
	log.Info("embedding cache: redis connected", "addr", addr)
	return &redisCache{log: log.With("service", "RedisEmbeddingCache"), rdb: rdb}, nil
}

func (c *redisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *redisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *redisCache) Close() error {
	return c.rdb.Close()
}
