package database

import (
	"context"
	"fmt"
	"time"

	"github.com/meetscribe-ai/platform/pkg/common/config"
	"github.com/redis/go-redis/v9"
)

// NewRedis dials Redis and verifies the connection with a bounded ping.
// The client is constructed once at process start and injected into the
// queue and lock packages; callers close it at shutdown.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
