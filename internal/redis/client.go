package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Client wraps a single-node or cluster Redis client.
type Client struct {
	redis.UniversalClient
}

// NewClient connects to addrs; more than one address selects cluster mode.
func NewClient(ctx context.Context, addrs []string, password string) (*Client, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addrs,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
		PoolTimeout:  3 * time.Second,
	})

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := client.Ping(pingCtx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}
	log.Debug().Strs("addrs", addrs).Msg("redis connected")

	return &Client{client}, nil
}

// HSet stores field/value pairs in the hash at key
func (c *Client) HSet(ctx context.Context, key string, values ...interface{}) error {
	return c.UniversalClient.HSet(ctx, key, values...).Err()
}

// HGetAll returns every field of the hash at key
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return c.UniversalClient.HGetAll(ctx, key).Result()
}

// Publish sends a message to a channel
func (c *Client) Publish(ctx context.Context, channel string, message interface{}) error {
	return c.UniversalClient.Publish(ctx, channel, message).Err()
}

// Subscribe returns a pubsub channel
func (c *Client) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return c.UniversalClient.Subscribe(ctx, channels...)
}

// IsAvailable checks if Redis is reachable
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.UniversalClient.Ping(ctx).Result()
	return err == nil
}

// Close terminates the connection
func (c *Client) Close() error {
	return c.UniversalClient.Close()
}
