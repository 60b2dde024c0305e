package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

const progressKey = "tick-archive:progress"

// RedisClient caches dashboard read models in Redis
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
	ttl    time.Duration
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  4 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return NewRedisClientFromClient(client, cfg, logger), nil
}

// NewRedisClientFromClient wraps an existing go-redis client
func NewRedisClientFromClient(client *redis.Client, cfg *config.RedisConfig, logger *logrus.Logger) *RedisClient {
	ttl := cfg.ProgressTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
		ttl:    ttl,
	}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// SetProgress caches the computed progress
func (rc *RedisClient) SetProgress(ctx context.Context, progress *models.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	return rc.client.Set(ctx, progressKey, data, rc.ttl).Err()
}

// GetProgress returns the cached progress, or nil on a cache miss
func (rc *RedisClient) GetProgress(ctx context.Context) (*models.Progress, error) {
	data, err := rc.client.Get(ctx, progressKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress: %w", err)
	}

	var progress models.Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
	}

	return &progress, nil
}

// InvalidateProgress drops the cached progress
func (rc *RedisClient) InvalidateProgress(ctx context.Context) error {
	return rc.client.Del(ctx, progressKey).Err()
}

// UnitCompleted invalidates cached progress after a unit advanced the run
func (rc *RedisClient) UnitCompleted(ctx context.Context, event models.UnitEvent) {
	if event.Outcome == models.UnitFailed {
		return
	}
	if err := rc.InvalidateProgress(ctx); err != nil {
		rc.logger.WithError(err).Debug("Failed to invalidate cached progress")
	}
}
