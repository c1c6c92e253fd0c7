// Package statedb mirrors committed chassis port state into a Redis
// STATE_DB and publishes port events on a pub/sub channel.
package statedb

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	// DB is the Redis database index of STATE_DB.
	DB = 6

	// PortTable holds one hash per port keyed PORT_TABLE|<node>|<port>.
	PortTable = "PORT_TABLE"

	// EventChannel carries JSON encoded port events.
	EventChannel = "CHASSIS_EVENTS"
)

// PortKey returns the Redis key of a port's hash.
func PortKey(node uint64, port uint32) string {
	return fmt.Sprintf("%s|%d|%d", PortTable, node, port)
}

// ParsePortKey is the inverse of PortKey.
func ParsePortKey(key string) (node uint64, port uint32, err error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 || parts[0] != PortTable {
		return 0, 0, fmt.Errorf("not a %s key: %q", PortTable, key)
	}
	node, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad node in %q: %w", key, err)
	}
	p, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad port in %q: %w", key, err)
	}
	return node, uint32(p), nil
}

// Client wraps a Redis client bound to STATE_DB.
type Client struct {
	client *redis.Client
}

// NewClient creates a STATE_DB client for addr. No connection is made until
// the first command.
func NewClient(addr string) *Client {
	return &Client{
		client: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   DB,
		}),
	}
}

// Connect tests the connection.
func (c *Client) Connect(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SetEntry replaces the hash at key with fields.
func (c *Client) SetEntry(ctx context.Context, key string, fields map[string]string) error {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(args) > 0 {
			pipe.HSet(ctx, key, args...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// GetEntry reads a hash. It returns (nil, nil) when the key does not exist.
func (c *Client) GetEntry(ctx context.Context, key string) (map[string]string, error) {
	vals, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}

func (c *Client) DeleteEntry(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

// Keys lists the keys of a table using cursor based SCAN.
func (c *Client) Keys(ctx context.Context, table string) ([]string, error) {
	var cursor uint64
	var keys []string
	for {
		batch, next, err := c.client.Scan(ctx, cursor, table+"|*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// Publish sends payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := c.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing on %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a subscription to channel. The caller closes it.
func (c *Client) Subscribe(ctx context.Context, channel string) *redis.PubSub {
	return c.client.Subscribe(ctx, channel)
}
