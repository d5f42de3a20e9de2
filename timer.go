package nyx

import (
	"container/heap"
	"time"
)

// TimerCB is invoked when a timer's deadline has passed.
type TimerCB func(t *Timer)

// Timer fires cb once (period == 0) or repeatedly every period, re-armed to
// max(now, prevDeadline+period) so it never drifts from wall-clock skew and
// never bursts on catch-up (spec.md §3).
type Timer struct {
	Handle

	cb       TimerCB
	deadline time.Time
	period   time.Duration
	seq      uint64 // insertion sequence, breaks deadline ties in FIFO order
	heapIdx  int    // index into loop.timers, -1 when not in the heap
}

// NewTimer creates an inactive timer bound to loop.
func NewTimer(loop *Loop) *Timer {
	t := &Timer{Handle: newHandle(loop, KindTimer), heapIdx: -1}
	t.Handle.Ref()
	t.detach = func() { t.stop() }
	return t
}

// Start arms the timer to fire after timeout, then every period if period >
// 0. Re-starting an active timer first stops it.
func (t *Timer) Start(cb TimerCB, timeout, period time.Duration) {
	if t.hasFlag(flagActive) {
		t.stop()
	}
	t.cb = cb
	t.period = period
	t.deadline = t.loop.now.Add(timeout)
	t.seq = t.loop.nextTimerSeq()
	t.activate()
	heap.Push(&t.loop.timers, t)
}

// Stop disarms the timer; it is idempotent.
func (t *Timer) Stop() { t.stop() }

func (t *Timer) stop() {
	if t.heapIdx >= 0 {
		heap.Remove(&t.loop.timers, t.heapIdx)
	}
	t.deactivate()
}

// Again re-arms the timer with its last-configured callback and period and
// the given timeout, measured from the loop's cached now. It does nothing
// if the timer was never started.
func (t *Timer) Again(timeout time.Duration) {
	if t.cb == nil {
		return
	}
	t.Start(t.cb, timeout, t.period)
}

// DueIn reports the duration until deadline, which may be negative if
// already due. Only valid while active.
func (t *Timer) DueIn() time.Duration { return t.deadline.Sub(t.loop.now) }

// rearm re-inserts a repeating timer after its callback has run, per
// spec.md §3: max(now, prevDeadline+period) so it never drifts and never
// bursts on catch-up.
func (t *Timer) rearm(now time.Time) {
	next := t.deadline.Add(t.period)
	if next.Before(now) {
		next = now
	}
	t.deadline = next
	t.seq = t.loop.nextTimerSeq()
	heap.Push(&t.loop.timers, t)
}

// timerHeap is a binary min-heap ordered by (deadline, seq), implementing
// container/heap.Interface, mirroring the teacher's use of container/heap
// for its timeout queue (watcher.go's timedHeap).
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx = i
	h[j].heapIdx = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.heapIdx = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIdx = -1
	*h = old[:n-1]
	return t
}
