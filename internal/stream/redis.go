package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
)

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisConfig holds configuration for the Redis snapshot bus.
type RedisConfig struct {
	URL     string
	Channel string
	// TTL bounds how long the latest snapshot key outlives the process.
	TTL     time.Duration
	Timeout time.Duration
	Logger  zerolog.Logger
}

// RedisPublisher mirrors snapshots to Redis: each one is PUBLISHed on the
// channel and stored under "<channel>:latest" for late readers.
type RedisPublisher struct {
	client    redisClient
	channel   string
	latestKey string
	ttl       time.Duration
	timeout   time.Duration
	logger    zerolog.Logger
}

// NewRedisPublisher connects to the Redis server at cfg.URL.
func NewRedisPublisher(cfg RedisConfig) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return newRedisPublisher(redis.NewClient(opts), cfg), nil
}

func newRedisPublisher(client redisClient, cfg RedisConfig) *RedisPublisher {
	if cfg.Channel == "" {
		cfg.Channel = "breakout:snapshot"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &RedisPublisher{
		client:    client,
		channel:   cfg.Channel,
		latestKey: cfg.Channel + ":latest",
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
		logger:    logging.WithOperation(cfg.Logger, "redis"),
	}
}

// Ping checks connectivity.
func (r *RedisPublisher) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Publish writes one snapshot. It blocks on the network and is meant to be
// driven by Run from a hub subscription, not from the monitor loop.
func (r *RedisPublisher) Publish(ctx context.Context, snap models.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Set(ctx, r.latestKey, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.latestKey, err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Run publishes every snapshot received on snaps until the channel closes or
// ctx is cancelled. Failures are logged and skipped.
func (r *RedisPublisher) Run(ctx context.Context, snaps <-chan models.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := r.Publish(ctx, snap); err != nil {
				r.logger.Warn().Err(err).Int("tick", snap.Tick).Msg("Snapshot not mirrored")
			}
		}
	}
}

// Close closes the Redis connection.
func (r *RedisPublisher) Close() error {
	return r.client.Close()
}
