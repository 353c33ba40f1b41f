package eventloop

import "time"

// timer is a pending callback with scheduling metadata for the priority
// queue. The seq field provides FIFO ordering for callbacks due at the same
// instant.
type timer struct {
	id       TimerID
	deadline time.Duration
	seq      uint64 // monotonic insertion order for FIFO tie-breaking
	fn       func()
	index    int // position in the heap, maintained by Swap/Push/Pop
}

// timerHeap implements [container/heap.Interface] as a min-heap ordered by
// deadline (ascending), with FIFO tie-breaking on seq (ascending).
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

// Less reports whether timer i fires before timer j.
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
