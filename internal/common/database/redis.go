// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"breakfear-decoder/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds the shared go-redis client. The visitor store uses hashes, the
// access worker uses plain keys with a TTL.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// PingRedis verifies the connection within ctx.
func PingRedis(ctx context.Context, rdb *redis.Client) error {
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
