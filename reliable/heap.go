package reliable

import (
	"container/heap"
	"time"
)

// deadlineItem is one scheduled retransmission deadline. generation ties
// the item back to the sender-entry state it was scheduled for: when an
// entry is rescheduled for retransmission its generation advances, and
// an acknowledged or skipped entry leaves the send buffer altogether.
// Either way the timer loop silently drops the stale heap entry instead
// of hunting through the heap to cancel it (§5 "Cancellation...
// best-effort").
type deadlineItem struct {
	seq        uint16
	deadline   time.Time
	generation uint32
	index      int
}

// deadlineHeap is a min-heap of pending retransmission deadlines. A
// single heap replaces the teacher's one-timer-per-packet model (design
// note: "a single timing wheel or min-heap of deadlines keyed by
// sequence is preferable").
type deadlineHeap []*deadlineItem

func (h deadlineHeap) Len() int { return len(h) }

func (h deadlineHeap) Less(i, j int) bool {
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	item := x.(*deadlineItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*deadlineHeap)(nil)
