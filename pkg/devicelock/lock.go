// Package devicelock provides the non-reentrant, per-device exclusive lock
// the executor holds for the duration of a flow run, a pair/unpair, or a
// manual maintenance operation (spec §5). It is backed by Redis using the
// same atomic acquire/release Lua-script pattern the teacher uses for its
// STATE_DB distributed device lock.
package devicelock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var acquireScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

var releaseScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// ErrHeld is returned by Acquire when another holder already has the lock.
var ErrHeld = fmt.Errorf("device lock already held")

// ErrHolderMismatch is returned by Release when the caller is not the
// current holder.
var ErrHolderMismatch = fmt.Errorf("device lock holder mismatch")

// Locker acquires and releases per-device exclusive locks.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Locker backed by client, with locks expiring after ttl if
// never explicitly released (guards against a crashed holder).
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

func lockKey(stableID string) string {
	return "flowmesh:lock|" + stableID
}

// Acquire takes the exclusive lock for stableID on behalf of holder.
// Returns ErrHeld if another holder currently owns it.
func (l *Locker) Acquire(ctx context.Context, stableID, holder string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := acquireScript.Run(ctx, l.client, []string{lockKey(stableID)},
		holder, now, int(l.ttl.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("acquiring device lock for %s: %w", stableID, err)
	}
	if result == 0 {
		return ErrHeld
	}
	return nil
}

// Release gives up the lock for stableID, verifying holder still owns it.
// Releasing an already-absent lock is not an error.
func (l *Locker) Release(ctx context.Context, stableID, holder string) error {
	result, err := releaseScript.Run(ctx, l.client, []string{lockKey(stableID)}, holder).Int()
	if err != nil {
		return fmt.Errorf("releasing device lock for %s: %w", stableID, err)
	}
	if result == 0 {
		return ErrHolderMismatch
	}
	return nil
}

// Holder returns the current lock holder for stableID, or "" if unlocked.
func (l *Locker) Holder(ctx context.Context, stableID string) (string, error) {
	vals, err := l.client.HGetAll(ctx, lockKey(stableID)).Result()
	if err != nil {
		return "", fmt.Errorf("reading device lock for %s: %w", stableID, err)
	}
	return vals["holder"], nil
}
