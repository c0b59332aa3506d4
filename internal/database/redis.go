package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultRedisTimeout = 3 * time.Second

// RedisOptions tunes the cache and pub/sub client.
type RedisOptions struct {
	URL string
	// PoolSize overrides the URL's pool_size when positive.
	PoolSize int
	// Timeout bounds dialing, each command and the startup ping.
	Timeout time.Duration
}

// ConnectRedis builds a client from opts and pings it before returning.
func ConnectRedis(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*redis.Client, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("redis url must not be empty")
	}

	options, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	options.DialTimeout = timeout
	options.ReadTimeout = timeout
	options.WriteTimeout = timeout
	if opts.PoolSize > 0 {
		options.PoolSize = opts.PoolSize
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	logger.Info().
		Str("component", "redis").
		Str("addr", options.Addr).
		Int("db", options.DB).
		Int("pool_size", options.PoolSize).
		Msg("redis connected")

	return client, nil
}
