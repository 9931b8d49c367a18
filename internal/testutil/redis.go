// Package testutil provides in-process test doubles shared across the
// flowmesh packages, grounded in the same hash-key conventions the teacher
// used for its CONFIG_DB/STATE_DB helpers, but backed by miniredis instead
// of a live lab container.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

// NewRedis starts an in-process miniredis server and returns a connected
// client. The server is closed automatically when the test completes.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

// SeedHash writes a single hash entry, following the table+"|"+key
// convention used throughout the queue and identity stores.
func SeedHash(t *testing.T, client *redis.Client, table, key string, fields map[string]string) {
	t.Helper()

	if len(fields) == 0 {
		return
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := client.HSet(context.Background(), table+"|"+key, args...).Err(); err != nil {
		t.Fatalf("seeding %s|%s: %v", table, key, err)
	}
}
