// Package queue implements the durable per-device command queue (spec
// §4.5): commands issued while a device is offline are persisted in Redis
// and drained once the Connection Monitor observes the device back online.
// The claim operation is a Lua script in the same atomic
// check-and-mutate style as pkg/devicelock, grounded on the teacher's
// STATE_DB lock scripts.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

const (
	keyPrefixCmd        = "flowmesh:cmd|"
	keyPrefixQueue      = "flowmesh:queue|"
	keyPrefixProcessing = "flowmesh:processing|"
	keyPrefixAll        = "flowmesh:allcmds|"
)

func cmdKey(id string) string            { return keyPrefixCmd + id }
func queueKey(target string) string      { return keyPrefixQueue + target }
func processingKey(target string) string { return keyPrefixProcessing + target }
func allKey(target string) string        { return keyPrefixAll + target }

// minStuckWindow is the floor applied to a command's TTL when deciding how
// long a "processing" entry may sit unclaimed before being reclassified
// (spec §9 Open Question: max(ttl, 10 minutes)).
const minStuckWindow = 10 * time.Minute

// score encodes priority (descending) then creation order (ascending) into
// a single float64 sortable by a Redis ZSET: higher priority sorts first,
// ties broken by earlier created_at.
func score(priority int, createdAt time.Time) float64 {
	return float64(priority)*1e13 - float64(createdAt.UnixNano())/1e9
}

// claimScript atomically moves one specific pending command into the
// processing set, returning 1 if it was still pending at the time of the
// call or 0 if it had already been claimed, cancelled, or expired out from
// under the caller.
var claimScript = redis.NewScript(`
local queueKey = KEYS[1]
local processingKey = KEYS[2]
local cmdPrefix = ARGV[1]
local id = ARGV[2]
local now = ARGV[3]

local removed = redis.call("ZREM", queueKey, id)
if removed == 0 then
	return 0
end
redis.call("SADD", processingKey, id)
redis.call("HSET", cmdPrefix .. id, "status", "processing", "processing_at", now)
return 1
`)

// Queue is a Redis-backed durable command queue, one ZSET per target device.
type Queue struct {
	client *redis.Client
}

// New builds a Queue backed by client.
func New(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue persists a new command for a device and returns its id. ttl of
// zero uses flowmodel.DefaultCommandTTL.
func (q *Queue) Enqueue(ctx context.Context, target, commandType, payload string, priority int, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = flowmodel.DefaultCommandTTL
	}
	now := time.Now().UTC()
	cmd := &flowmodel.QueuedCommand{
		CommandID:      uuid.NewString(),
		TargetStableID: target,
		CommandType:    commandType,
		Payload:        payload,
		Priority:       priority,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		Status:         flowmodel.CommandPending,
		MaxRetries:     flowmodel.DefaultMaxRetries,
	}
	if err := q.save(ctx, cmd); err != nil {
		return "", err
	}
	if err := q.client.SAdd(ctx, allKey(target), cmd.CommandID).Err(); err != nil {
		return "", fmt.Errorf("indexing command for %s: %w", target, err)
	}
	if err := q.client.ZAdd(ctx, queueKey(target), &redis.Z{Score: score(priority, now), Member: cmd.CommandID}).Err(); err != nil {
		return "", fmt.Errorf("enqueueing command for %s: %w", target, err)
	}
	return cmd.CommandID, nil
}

func (q *Queue) save(ctx context.Context, cmd *flowmodel.QueuedCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return q.client.HSet(ctx, cmdKey(cmd.CommandID), "data", data).Err()
}

func (q *Queue) load(ctx context.Context, id string) (*flowmodel.QueuedCommand, error) {
	data, err := q.client.HGet(ctx, cmdKey(id), "data").Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cmd flowmodel.QueuedCommand
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// GetPending lists every still-pending command queued for a device, ordered
// by (priority desc, created_at asc), transitioning any whose TTL has
// elapsed from pending to expired along the way (spec §4.8). It only reads
// and prunes expired entries — it never claims a command — so repeated
// calls return the same list until something else mutates the queue, and
// re-expiring an already-expired record is a no-op: the idempotence §8
// requires.
func (q *Queue) GetPending(ctx context.Context, target string) ([]*flowmodel.QueuedCommand, error) {
	ids, err := q.client.ZRevRange(ctx, queueKey(target), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending commands for %s: %w", target, err)
	}
	now := time.Now().UTC()
	pending := make([]*flowmodel.QueuedCommand, 0, len(ids))
	for _, id := range ids {
		cmd, err := q.load(ctx, id)
		if err != nil {
			return nil, err
		}
		if cmd == nil {
			continue
		}
		if cmd.IsExpired(now) {
			if err := q.client.ZRem(ctx, queueKey(target), id).Err(); err != nil {
				return nil, err
			}
			cmd.Status = flowmodel.CommandExpired
			if err := q.save(ctx, cmd); err != nil {
				return nil, err
			}
			continue
		}
		pending = append(pending, cmd)
	}
	return pending, nil
}

// MarkProcessing atomically claims one pending command, transitioning it
// out of the priority queue into the processing set (spec §4.8's claim
// step, kept separate from GetPending's listing). Returns nil, nil if the
// command was no longer pending by the time of the call — already claimed,
// cancelled, or expired.
func (q *Queue) MarkProcessing(ctx context.Context, commandID string) (*flowmodel.QueuedCommand, error) {
	cmd, err := q.load(ctx, commandID)
	if err != nil || cmd == nil {
		return nil, err
	}
	now := time.Now().UTC()
	claimed, err := claimScript.Run(ctx, q.client,
		[]string{queueKey(cmd.TargetStableID), processingKey(cmd.TargetStableID)},
		keyPrefixCmd, commandID, now.Format(time.RFC3339)).Int()
	if err != nil {
		return nil, fmt.Errorf("claiming command %s: %w", commandID, err)
	}
	if claimed == 0 {
		return nil, nil
	}
	cmd.Status = flowmodel.CommandProcessing
	cmd.ProcessingAt = now
	if err := q.save(ctx, cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// MarkCompleted transitions a claimed command to its terminal success state.
func (q *Queue) MarkCompleted(ctx context.Context, commandID string) error {
	cmd, err := q.load(ctx, commandID)
	if err != nil || cmd == nil {
		return err
	}
	cmd.Status = flowmodel.CommandCompleted
	if err := q.save(ctx, cmd); err != nil {
		return err
	}
	return q.client.SRem(ctx, processingKey(cmd.TargetStableID), commandID).Err()
}

// MarkFailed records a failure. If the command still has retry budget, it
// is re-queued as pending at its original priority; otherwise it is marked
// terminally failed.
func (q *Queue) MarkFailed(ctx context.Context, commandID, errMsg string) error {
	cmd, err := q.load(ctx, commandID)
	if err != nil || cmd == nil {
		return err
	}
	cmd.ErrorMessage = errMsg
	cmd.RetryCount++
	if err := q.client.SRem(ctx, processingKey(cmd.TargetStableID), commandID).Err(); err != nil {
		return err
	}
	if cmd.RetryCount < cmd.MaxRetries {
		cmd.Status = flowmodel.CommandPending
		if err := q.save(ctx, cmd); err != nil {
			return err
		}
		return q.client.ZAdd(ctx, queueKey(cmd.TargetStableID),
			&redis.Z{Score: score(cmd.Priority, cmd.CreatedAt), Member: cmd.CommandID}).Err()
	}
	cmd.Status = flowmodel.CommandFailed
	return q.save(ctx, cmd)
}

// CancelPending removes every still-pending command for a device, optionally
// restricted to one command type. Returns the number cancelled.
func (q *Queue) CancelPending(ctx context.Context, target, commandType string) (int, error) {
	ids, err := q.client.ZRange(ctx, queueKey(target), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		cmd, err := q.load(ctx, id)
		if err != nil || cmd == nil {
			continue
		}
		if commandType != "" && cmd.CommandType != commandType {
			continue
		}
		if err := q.client.ZRem(ctx, queueKey(target), id).Err(); err != nil {
			return cancelled, err
		}
		cmd.Status = flowmodel.CommandExpired
		if err := q.save(ctx, cmd); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// ReconcileStuck scans a device's queue-adjacent commands and reclassifies
// any stuck in "processing" for longer than max(ttl, 10 minutes) back to
// pending (if retries remain) or failed (spec §9 Open Question).
func (q *Queue) ReconcileStuck(ctx context.Context, target string) (int, error) {
	ids, err := q.client.SMembers(ctx, processingKey(target)).Result()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	reclassified := 0
	for _, id := range ids {
		cmd, err := q.load(ctx, id)
		if err != nil || cmd == nil || cmd.Status != flowmodel.CommandProcessing {
			continue
		}
		window := cmd.ExpiresAt.Sub(cmd.CreatedAt)
		if window < minStuckWindow {
			window = minStuckWindow
		}
		if now.Sub(cmd.ProcessingAt) < window {
			continue
		}
		if err := q.MarkFailed(ctx, id, "stuck in processing past window"); err != nil {
			return reclassified, err
		}
		reclassified++
	}
	return reclassified, nil
}

// CleanupOld deletes terminal (completed/failed/expired) command records
// older than maxAge, bounding unbounded Redis key growth.
func (q *Queue) CleanupOld(ctx context.Context, target string, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	ids, err := q.client.SMembers(ctx, allKey(target)).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		cmd, err := q.load(ctx, id)
		if err != nil || cmd == nil {
			q.client.SRem(ctx, allKey(target), id)
			continue
		}
		terminal := cmd.Status == flowmodel.CommandCompleted || cmd.Status == flowmodel.CommandFailed || cmd.Status == flowmodel.CommandExpired
		if terminal && cmd.CreatedAt.Before(cutoff) {
			q.client.SRem(ctx, allKey(target), id)
			q.client.Del(ctx, cmdKey(id))
			removed++
		}
	}
	return removed, nil
}
