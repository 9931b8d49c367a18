package scheduler

import (
	"container/heap"
	"time"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// flowItem is one pending flow in a device's priority queue, ordered by
// priority descending then enqueue time ascending (spec §4.3).
type flowItem struct {
	flow     *flowmodel.Flow
	enqueued time.Time
	index    int
}

type flowHeap []*flowItem

func (h flowHeap) Len() int { return len(h) }

func (h flowHeap) Less(i, j int) bool {
	if h[i].flow.Priority != h[j].flow.Priority {
		return h[i].flow.Priority > h[j].flow.Priority
	}
	return h[i].enqueued.Before(h[j].enqueued)
}

func (h flowHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *flowHeap) Push(x interface{}) {
	item := x.(*flowItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *flowHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*flowHeap)(nil)
