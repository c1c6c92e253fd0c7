//go:build integration

package testutil

import (
	"context"
	"testing"

	"github.com/go-redis/redis/v8"
)

// FlushDB flushes a specific Redis database.
func FlushDB(t *testing.T, addr string, db int) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flushing DB %d: %v", db, err)
	}
}

// WriteEntry writes a hash at key in a specific Redis DB.
func WriteEntry(t *testing.T, addr string, db int, key string, fields map[string]string) {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := client.HSet(context.Background(), key, args...).Err(); err != nil {
		t.Fatalf("writing %s: %v", key, err)
	}
}

// ReadEntry reads the hash at key from a specific Redis DB.
func ReadEntry(t *testing.T, addr string, db int, key string) map[string]string {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	vals, err := client.HGetAll(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("reading %s: %v", key, err)
	}
	return vals
}

// EntryExists checks if key exists in a specific Redis DB.
func EntryExists(t *testing.T, addr string, db int, key string) bool {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()

	n, err := client.Exists(context.Background(), key).Result()
	if err != nil {
		t.Fatalf("checking %s: %v", key, err)
	}
	return n > 0
}
