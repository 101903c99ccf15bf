package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a thin JSON cache over Redis. The engine uses it for live session
// progress, which is ephemeral by nature, hence the short TTLs.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	return json.Unmarshal([]byte(val), dest)
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Progress is the live status of a running try-on session.
type Progress struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

const progressTTL = 30 * time.Minute

func progressKey(tryonID string) string {
	return "tryon:progress:" + tryonID
}

// SetProgress publishes a human-readable status line for polling clients.
func (c *Cache) SetProgress(ctx context.Context, tryonID, status string) error {
	return c.Set(ctx, progressKey(tryonID), Progress{
		Status:    status,
		UpdatedAt: time.Now(),
	}, progressTTL)
}

func (c *Cache) GetProgress(ctx context.Context, tryonID string) (*Progress, error) {
	var p Progress
	if err := c.Get(ctx, progressKey(tryonID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}
