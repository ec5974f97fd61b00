package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// ChannelPrefix is prepended to the address to form the pub/sub channel.
const ChannelPrefix = "notifications:"

// RedisDeliverer publishes messages on a per-user Redis channel.
type RedisDeliverer struct {
	client redis.UniversalClient
}

// Message is the payload published on the channel.
type Message struct {
	Template string            `json:"template"`
	Args     map[string]string `json:"args,omitempty"`
}

// NewRedisDeliverer wraps an existing client.
func NewRedisDeliverer(client redis.UniversalClient) *RedisDeliverer {
	return &RedisDeliverer{client: client}
}

// DialRedis parses a redis:// URL and verifies the server answers.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Send implements Deliverer. A message with no subscriber is still accepted.
func (d *RedisDeliverer) Send(ctx context.Context, address, templateID string, args map[string]string) (bool, error) {
	payload, err := json.Marshal(Message{Template: templateID, Args: args})
	if err != nil {
		return false, fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := d.client.Publish(ctx, ChannelPrefix+address, payload).Err(); err != nil {
		return false, fmt.Errorf("failed to publish notification: %w", err)
	}
	return true, nil
}
