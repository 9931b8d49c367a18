package queue

import (
	"context"
	"testing"
	"time"

	"github.com/newtron-network/flowmesh/internal/testutil"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

func TestGetPendingOrdersByPriority(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	lowID, err := q.Enqueue(ctx, "S1", "tap", "{}", int(flowmodel.PriorityLow), time.Hour)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	highID, err := q.Enqueue(ctx, "S1", "tap", "{}", int(flowmodel.PriorityHigh), time.Hour)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	pending, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 2 || pending[0].CommandID != highID || pending[1].CommandID != lowID {
		t.Fatalf("expected [high, low], got %+v", pending)
	}
	if pending[0].Status != flowmodel.CommandPending {
		t.Errorf("GetPending must not claim: status = %s, want pending", pending[0].Status)
	}

	// Repeated calls are idempotent: nothing was claimed, so the list is
	// unchanged.
	again, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(again) != 2 || again[0].CommandID != highID || again[1].CommandID != lowID {
		t.Fatalf("expected idempotent [high, low], got %+v", again)
	}
}

func TestMarkProcessingClaimsThenDrainsQueue(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	id, err := q.Enqueue(ctx, "S1", "tap", "{}", 0, time.Hour)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	claimed, err := q.MarkProcessing(ctx, id)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if claimed == nil || claimed.CommandID != id {
		t.Fatalf("expected to claim %s, got %+v", id, claimed)
	}
	if claimed.Status != flowmodel.CommandProcessing {
		t.Errorf("claimed command status = %s, want processing", claimed.Status)
	}

	pending, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected empty pending list after claim, got %+v", pending)
	}

	// A second claim attempt on the same command finds it already gone from
	// the pending queue.
	again, err := q.MarkProcessing(ctx, id)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if again != nil {
		t.Fatalf("expected nil on re-claim, got %+v", again)
	}
}

func TestMarkFailedRetriesThenTerminates(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	id, err := q.Enqueue(ctx, "S1", "tap", "{}", 0, time.Hour)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	for i := 0; i < flowmodel.DefaultMaxRetries; i++ {
		claimed, err := q.MarkProcessing(ctx, id)
		if err != nil {
			t.Fatalf("MarkProcessing: %v", err)
		}
		if claimed == nil {
			t.Fatalf("expected a retried command claimable on attempt %d", i)
		}
		if err := q.MarkFailed(ctx, id, "transport error"); err != nil {
			t.Fatalf("MarkFailed: %v", err)
		}
	}

	final, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != flowmodel.CommandFailed {
		t.Errorf("status after exhausting retries = %s, want failed", final.Status)
	}

	// No longer claimable.
	claimed, err := q.MarkProcessing(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if claimed != nil {
		t.Errorf("terminally failed command should not be reclaimable, got %+v", claimed)
	}
}

func TestMarkCompleted(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	id, err := q.Enqueue(ctx, "S1", "tap", "{}", 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := q.MarkCompleted(ctx, id); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	cmd, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Status != flowmodel.CommandCompleted {
		t.Errorf("status = %s, want completed", cmd.Status)
	}
}

func TestCancelPendingByType(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	tapID, _ := q.Enqueue(ctx, "S1", "tap", "{}", 0, time.Hour)
	q.Enqueue(ctx, "S1", "swipe", "{}", 0, time.Hour)

	n, err := q.CancelPending(ctx, "S1", "tap")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("cancelled = %d, want 1", n)
	}

	cmd, err := q.load(ctx, tapID)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Status != flowmodel.CommandExpired {
		t.Errorf("cancelled command status = %s, want expired", cmd.Status)
	}

	remaining, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].CommandType != "swipe" {
		t.Fatalf("expected swipe command to remain pending, got %+v", remaining)
	}
}

func TestGetPendingExpiresStaleCommands(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	id, err := q.Enqueue(ctx, "S1", "tap", "{}", 0, -time.Second)
	if err != nil {
		t.Fatal(err)
	}
	cmd, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.IsExpired(time.Now().UTC()) {
		t.Fatal("command should already be expired")
	}

	result, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 0 {
		t.Fatalf("expired command should not be listed as pending, got %+v", result)
	}

	expired, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if expired.Status != flowmodel.CommandExpired {
		t.Errorf("status after GetPending = %s, want expired", expired.Status)
	}

	// Idempotent: calling again with the record already expired is a no-op.
	again, err := q.GetPending(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatalf("expected still-empty pending list, got %+v", again)
	}
}

func TestReconcileStuckReclassifiesAfterWindow(t *testing.T) {
	ctx := context.Background()
	q := New(testutil.NewRedis(t))

	id, err := q.Enqueue(ctx, "S1", "tap", "{}", 0, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := q.MarkProcessing(ctx, id); err != nil {
		t.Fatal(err)
	}

	cmd, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	// Simulate having been stuck in processing past max(TTL, 10 minutes),
	// which is the one-hour TTL for this command.
	cmd.ProcessingAt = time.Now().UTC().Add(-2 * time.Hour)
	if err := q.save(ctx, cmd); err != nil {
		t.Fatal(err)
	}

	n, err := q.ReconcileStuck(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reconciled = %d, want 1", n)
	}

	reclassified, err := q.load(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if reclassified.Status != flowmodel.CommandPending {
		t.Errorf("status after reconcile = %s, want pending (retry budget remains)", reclassified.Status)
	}

	again, err := q.ReconcileStuck(ctx, "S1")
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("reconciled again = %d, want 0 (already reclassified out of processing set)", again)
	}
}
