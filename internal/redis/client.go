package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cmorgan83/trade-history-service/internal/config"
	"github.com/cmorgan83/trade-history-service/internal/models"
)

// openPositionsKey caches the open-position listing between rebuilds
const openPositionsKey = "positions:open"

// DefaultPositionsTTL bounds staleness if an invalidation is ever missed
const DefaultPositionsTTL = 5 * time.Minute

// Client wraps the Redis client with position-cache operations
type Client struct {
	rdb *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks if Redis is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// SetOpenPositions caches the open-position listing
func (c *Client) SetOpenPositions(ctx context.Context, positions []*models.PositionRow, ttl time.Duration) error {
	payload, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}
	return c.rdb.Set(ctx, openPositionsKey, payload, ttl).Err()
}

// GetOpenPositions retrieves the cached open-position listing; a cache
// miss returns ok=false, not an error
func (c *Client) GetOpenPositions(ctx context.Context) ([]*models.PositionRow, bool, error) {
	payload, err := c.rdb.Get(ctx, openPositionsKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var positions []*models.PositionRow
	if err := json.Unmarshal(payload, &positions); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached positions: %w", err)
	}
	return positions, true, nil
}

// InvalidatePositions drops the cached listing; called after every
// successful rebuild so readers never see pre-rebuild positions
func (c *Client) InvalidatePositions(ctx context.Context) error {
	return c.rdb.Del(ctx, openPositionsKey).Err()
}
