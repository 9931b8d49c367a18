// Package scheduler implements the per-device Flow Scheduler (spec §4.3):
// one priority queue and one long-lived worker goroutine per stable device
// id, draining the queue whenever no flow is currently running on that
// device. Devices are processed in parallel, never interleaved on a shared
// executor.
package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/newtron-network/flowmesh/pkg/ferrors"
	"github.com/newtron-network/flowmesh/pkg/flowmodel"
	"github.com/newtron-network/flowmesh/pkg/logging"
)

// Executor runs one flow to completion. Implemented by pkg/executor.
type Executor interface {
	Execute(ctx context.Context, flow *flowmodel.Flow) (*flowmodel.FlowExecutionResult, error)
}

// Scheduler fans flows out across per-device worker queues.
type Scheduler struct {
	mu           sync.Mutex
	devices      map[string]*deviceQueue
	flowLocation map[string]string // flow_id -> stable_device_id, while pending
	executor     Executor
	maxDepth     int
}

// New builds a Scheduler that hands claimed flows to executor. maxDepth of
// zero uses flowmodel.DefaultSchedulerQueueDepth.
func New(executor Executor, maxDepth int) *Scheduler {
	if maxDepth <= 0 {
		maxDepth = flowmodel.DefaultSchedulerQueueDepth
	}
	return &Scheduler{
		devices:      make(map[string]*deviceQueue),
		flowLocation: make(map[string]string),
		executor:     executor,
		maxDepth:     maxDepth,
	}
}

type deviceQueue struct {
	mu              sync.Mutex
	cond            *sync.Cond
	items           flowHeap
	pendingByFlowID map[string]*flowItem
	runningFlowID   string
	stopped         bool
}

func newDeviceQueue() *deviceQueue {
	dq := &deviceQueue{pendingByFlowID: make(map[string]*flowItem)}
	dq.cond = sync.NewCond(&dq.mu)
	return dq
}

func (s *Scheduler) queueFor(stableID string) *deviceQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	dq, ok := s.devices[stableID]
	if !ok {
		dq = newDeviceQueue()
		s.devices[stableID] = dq
		go s.runWorker(stableID, dq)
	}
	return dq
}

// Enqueue adds flow to its device's queue. Non-blocking; rejects with
// ferrors.QueueOverflowError if the device's pending depth already reached
// the configured bound. A tick arriving while an earlier instance of the
// same flow_id is pending or running is silently coalesced: at most one
// pending instance per flow_id (spec §4.3 backpressure policy).
func (s *Scheduler) Enqueue(flow *flowmodel.Flow) error {
	dq := s.queueFor(flow.StableDeviceID)

	dq.mu.Lock()
	defer dq.mu.Unlock()

	if _, pending := dq.pendingByFlowID[flow.FlowID]; pending {
		return nil
	}
	// A tick for the flow_id currently running is allowed to queue exactly
	// one coalesced instance behind it, per the pendingByFlowID check above.
	if len(dq.items) >= s.maxDepth {
		return &ferrors.QueueOverflowError{StableID: flow.StableDeviceID, Depth: len(dq.items), Bound: s.maxDepth}
	}

	item := &flowItem{flow: flow, enqueued: time.Now().UTC()}
	heap.Push(&dq.items, item)
	dq.pendingByFlowID[flow.FlowID] = item

	s.mu.Lock()
	s.flowLocation[flow.FlowID] = flow.StableDeviceID
	s.mu.Unlock()

	dq.cond.Signal()
	return nil
}

// Cancel removes a pending flow by id. A currently-running flow is not
// pre-empted. Returns true if a pending entry was removed.
func (s *Scheduler) Cancel(flowID string) bool {
	s.mu.Lock()
	stableID, ok := s.flowLocation[flowID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	dq := s.queueFor(stableID)
	dq.mu.Lock()
	defer dq.mu.Unlock()

	item, ok := dq.pendingByFlowID[flowID]
	if !ok {
		return false
	}
	heap.Remove(&dq.items, item.index)
	delete(dq.pendingByFlowID, flowID)

	s.mu.Lock()
	delete(s.flowLocation, flowID)
	s.mu.Unlock()
	return true
}

// GetQueueDepth returns the number of flows pending (not running) for a
// device, in O(1).
func (s *Scheduler) GetQueueDepth(stableID string) int {
	s.mu.Lock()
	dq, ok := s.devices[stableID]
	s.mu.Unlock()
	if !ok {
		return 0
	}
	dq.mu.Lock()
	defer dq.mu.Unlock()
	return len(dq.items)
}

// Stop signals every device worker to exit after its current flow (if any)
// completes. It does not wait for workers to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dq := range s.devices {
		dq.mu.Lock()
		dq.stopped = true
		dq.cond.Broadcast()
		dq.mu.Unlock()
	}
}

func (s *Scheduler) runWorker(stableID string, dq *deviceQueue) {
	log := logging.WithDevice(stableID).WithField("component", "scheduler")
	for {
		dq.mu.Lock()
		for len(dq.items) == 0 && !dq.stopped {
			dq.cond.Wait()
		}
		if dq.stopped && len(dq.items) == 0 {
			dq.mu.Unlock()
			return
		}
		item := heap.Pop(&dq.items).(*flowItem)
		delete(dq.pendingByFlowID, item.flow.FlowID)
		dq.runningFlowID = item.flow.FlowID
		dq.mu.Unlock()

		s.mu.Lock()
		delete(s.flowLocation, item.flow.FlowID)
		s.mu.Unlock()

		ctx := context.Background()
		if _, err := s.executor.Execute(ctx, item.flow); err != nil {
			log.WithField("flow_id", item.flow.FlowID).Warnf("flow execution returned error: %v", err)
		}

		dq.mu.Lock()
		dq.runningFlowID = ""
		dq.mu.Unlock()
	}
}
