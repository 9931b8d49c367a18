package devicelock

import (
	"context"
	"testing"
	"time"

	"github.com/newtron-network/flowmesh/internal/testutil"
)

func TestAcquireRelease(t *testing.T) {
	client := testutil.NewRedis(t)
	l := New(client, time.Minute)
	ctx := context.Background()

	if err := l.Acquire(ctx, "S1", "worker-a"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Acquire(ctx, "S1", "worker-b"); err != ErrHeld {
		t.Fatalf("expected ErrHeld, got %v", err)
	}
	holder, err := l.Holder(ctx, "S1")
	if err != nil || holder != "worker-a" {
		t.Fatalf("Holder = %q, %v; want worker-a", holder, err)
	}
	if err := l.Release(ctx, "S1", "worker-b"); err != ErrHolderMismatch {
		t.Fatalf("expected ErrHolderMismatch, got %v", err)
	}
	if err := l.Release(ctx, "S1", "worker-a"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Acquire(ctx, "S1", "worker-b"); err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
}

func TestReleaseAbsent(t *testing.T) {
	client := testutil.NewRedis(t)
	l := New(client, time.Minute)
	if err := l.Release(context.Background(), "S2", "nobody"); err != nil {
		t.Fatalf("releasing absent lock should be a no-op, got %v", err)
	}
}
