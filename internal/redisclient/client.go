package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return New(rdb), nil
}

// New wraps an existing redis client.
func New(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func checkoutLockKey(userID int64) string {
	return fmt.Sprintf("lock:checkout:%d", userID)
}

func idempotencyKey(userID int64, key string) string {
	return fmt.Sprintf("idempotency:%d:%s", userID, key)
}

// AcquireCheckoutLock takes the user's checkout lock.
// It returns the owner token, or ok=false when another checkout holds the lock.
func (c *Client) AcquireCheckoutLock(ctx context.Context, userID int64, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, checkoutLockKey(userID), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseCheckoutLock deletes the lock only if token still owns it
func (c *Client) ReleaseCheckoutLock(ctx context.Context, userID int64, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{checkoutLockKey(userID)}, token).Result()
	if err != nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

// GetIdempotentResponse returns the stored response for an idempotency key
func (c *Client) GetIdempotentResponse(ctx context.Context, userID int64, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyKey(userID, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	return val, true, nil
}

// SaveIdempotentResponse stores a response under an idempotency key with TTL
func (c *Client) SaveIdempotentResponse(ctx context.Context, userID int64, key string, payload []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyKey(userID, key), payload, ttl).Err()
}
