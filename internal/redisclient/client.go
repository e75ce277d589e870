package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"shop-service/internal/models"
)

//go:embed scripts/cart_add.lua
var cartAddScript string

//go:embed scripts/cart_set.lua
var cartSetScript string

//go:embed scripts/cart_remove.lua
var cartRemoveScript string

// Client is the Redis-backed cart storage. Each session's cart is a
// hash of product id to quantity plus a list tracking insertion order;
// both expire together after the configured TTL of inactivity.
type Client struct {
	rdb          *redis.Client
	ttl          time.Duration
	addScript    *redis.Script
	setScript    *redis.Script
	removeScript *redis.Script
}

// NewClient creates a new Redis cart client with Lua scripts loaded
func NewClient(addr, password string, db int, cartTTL time.Duration) (*Client, error) {
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

	return NewClientWithRedis(rdb, cartTTL), nil
}

// NewClientWithRedis wraps an existing Redis connection
func NewClientWithRedis(rdb *redis.Client, cartTTL time.Duration) *Client {
	return &Client{
		rdb:          rdb,
		ttl:          cartTTL,
		addScript:    redis.NewScript(cartAddScript),
		setScript:    redis.NewScript(cartSetScript),
		removeScript: redis.NewScript(cartRemoveScript),
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func cartKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func cartOrderKey(sessionID string) string {
	return fmt.Sprintf("cart:%s:ids", sessionID)
}

// AddItem increments the quantity for productID by 1 unless the cart
// already holds limit units. Returns the new quantity and whether the
// increment was applied; the limit check and increment run as one
// script so they cannot interleave.
func (c *Client) AddItem(ctx context.Context, sessionID string, productID int64, limit int) (int64, bool, error) {
	keys := []string{cartKey(sessionID), cartOrderKey(sessionID)}

	result, err := c.addScript.Run(ctx, c.rdb, keys, productID, limit, int(c.ttl.Seconds())).Result()
	if err != nil {
		return 0, false, fmt.Errorf("cart add script failed: %w", err)
	}

	qty, ok := result.(int64)
	if !ok {
		return 0, false, fmt.Errorf("unexpected script result type %T", result)
	}
	if qty < 0 {
		return 0, false, nil
	}
	return qty, true, nil
}

// SetItem sets the quantity for productID to exactly qty
func (c *Client) SetItem(ctx context.Context, sessionID string, productID int64, qty int) error {
	keys := []string{cartKey(sessionID), cartOrderKey(sessionID)}

	if _, err := c.setScript.Run(ctx, c.rdb, keys, productID, qty, int(c.ttl.Seconds())).Result(); err != nil {
		return fmt.Errorf("cart set script failed: %w", err)
	}
	return nil
}

// RemoveItem deletes the entry for productID, no-op when absent
func (c *Client) RemoveItem(ctx context.Context, sessionID string, productID int64) error {
	keys := []string{cartKey(sessionID), cartOrderKey(sessionID)}

	if _, err := c.removeScript.Run(ctx, c.rdb, keys, productID).Result(); err != nil {
		return fmt.Errorf("cart remove script failed: %w", err)
	}
	return nil
}

// ClearCart empties the session's cart unconditionally
func (c *Client) ClearCart(ctx context.Context, sessionID string) error {
	return c.rdb.Del(ctx, cartKey(sessionID), cartOrderKey(sessionID)).Err()
}

// GetCart retrieves the cart lines in insertion order
func (c *Client) GetCart(ctx context.Context, sessionID string) ([]models.CartLine, error) {
	ids, err := c.rdb.LRange(ctx, cartOrderKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cart ids read failed: %w", err)
	}

	quantities, err := c.rdb.HGetAll(ctx, cartKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cart read failed: %w", err)
	}

	lines := make([]models.CartLine, 0, len(ids))
	for _, id := range ids {
		raw, ok := quantities[id]
		if !ok {
			continue
		}
		productID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil || qty < 1 {
			continue
		}
		lines = append(lines, models.CartLine{ProductID: productID, Quantity: qty})
	}
	return lines, nil
}
