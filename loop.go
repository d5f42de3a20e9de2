package nyx

import (
	"sync"
	"time"

	"github.com/nyx-io/nyx/internal/metrics"
)

// RunMode selects how far Run iterates before returning, per spec.md §6.
type RunMode int

const (
	// RunDefault iterates until the loop has no active+ref'd handles and
	// no in-flight requests left.
	RunDefault RunMode = iota
	// RunOnce runs exactly one iteration, blocking in the backend poller
	// for up to the next timer deadline if nothing else is ready.
	RunOnce
	// RunNoWait runs exactly one iteration without blocking.
	RunNoWait
)

// Loop is a single-threaded reactor: exactly one goroutine may drive it at
// a time (spec.md §5). All fields below are touched only from that
// goroutine except where noted.
type Loop struct {
	now    time.Time
	timers timerHeap
	timerSeq uint64

	// liveness is the combined count of (active ∧ ref'd) handles and
	// in-flight requests; Run(RunDefault) returns when it reaches zero
	// (spec.md §3, §8 invariant 2).
	liveness int
	inflight int

	idles    []*Idle
	prepares []*Prepare
	checks   []*Check

	// pendingIO callbacks deferred from the previous iteration (phase 3).
	pendingIO     []func()
	pendingIONext []func()

	// closePending accumulates handles Close()'d during the current
	// iteration; closeReady holds the handles to finalize in phase 10,
	// populated from closePending at the top of the *next* iteration so
	// close_cb never fires in the iteration that requested it.
	closePending []*Handle
	closeReady   []*Handle

	bk backend

	// asyncs is every Async handle bound to this loop; after wait()
	// returns the loop checks each for a coalesced pending fire.
	asyncs []*Async

	children map[int]*Process // pid -> handle, §4.7

	// fdOwners routes backend events back to the stream that registered
	// fd; kept per-loop (not global) so independent loops in the same
	// process never cross-deliver events.
	fdOwners map[int]ioEventSink

	// mu is not taken by any code path: worker-pool completions are queued
	// in Pool.completions (guarded by Pool.compMu) and drained on the loop
	// thread via the pool's Async.
	mu sync.Mutex

	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry; every subsequent iteration
// reports its duration and the loop's liveness counters through it. Pass
// nil to stop reporting.
func (l *Loop) SetMetrics(r *metrics.Registry) { l.metrics = r }

// ioEventSink receives backend-reported readiness/completion events for
// one fd. Implemented by *stream.
type ioEventSink interface {
	onEvent(ev pollEvent)
}

// registerFD starts backend monitoring of fd for ev, routing future events
// to owner.
func (l *Loop) registerFD(fd int, ev ioEvent, owner ioEventSink) error {
	l.fdOwners[fd] = owner
	return l.bk.add(fd, ev)
}

// modifyFD changes the monitored event set for fd.
func (l *Loop) modifyFD(fd int, ev ioEvent) error {
	return l.bk.mod(fd, ev)
}

// unregisterFD stops backend monitoring of fd.
func (l *Loop) unregisterFD(fd int) error {
	delete(l.fdOwners, fd)
	return l.bk.del(fd)
}

// NewLoop creates a reactor with no active handles. Call Run to drive it.
func NewLoop() (*Loop, error) {
	bk, err := newBackend()
	if err != nil {
		return nil, err
	}
	l := &Loop{
		bk:       bk,
		now:      time.Now(),
		children: make(map[int]*Process),
		fdOwners: make(map[int]ioEventSink),
	}
	return l, nil
}

// Now returns the loop's cached monotonic time, sampled once per
// iteration (spec.md §3).
func (l *Loop) Now() time.Time { return l.now }

func (l *Loop) nextTimerSeq() uint64 {
	l.timerSeq++
	return l.timerSeq
}

func (l *Loop) enqueueClose(h *Handle) {
	if h.queuedClose {
		return
	}
	h.queuedClose = true
	// A handle awaiting its close_cb must itself keep the loop alive, or
	// Run(RunDefault) could return before ever delivering it (e.g. a timer
	// that was the only live handle, closed from its own firing
	// callback); balanced by the decrement in iterate's phase 10.
	l.liveness++
	l.closePending = append(l.closePending, h)
}

// deferIO queues fn to run in phase 3 of the *next* iteration.
func (l *Loop) deferIO(fn func()) {
	l.pendingIONext = append(l.pendingIONext, fn)
}

// Run drives the loop according to mode and reports whether the loop still
// has work (true) or is fully drained (false), per spec.md §4.1 exit codes.
func (l *Loop) Run(mode RunMode) bool {
	switch mode {
	case RunDefault:
		for l.liveness > 0 {
			l.iterate(true)
		}
		return false
	case RunOnce:
		if l.liveness == 0 {
			return false
		}
		l.iterate(true)
		return l.liveness > 0
	case RunNoWait:
		if l.liveness == 0 {
			return false
		}
		l.iterate(false)
		return l.liveness > 0
	default:
		return false
	}
}

// Close releases the loop's backend resources. Call once all handles have
// finished closing.
func (l *Loop) Close() error { return l.bk.close() }

func (l *Loop) iterate(allowBlock bool) {
	iterStart := time.Now()
	defer func() {
		if l.metrics != nil {
			l.metrics.RecordIteration(time.Since(iterStart).Seconds())
			l.metrics.SetInflightRequests(l.inflight)
			l.metrics.SetActiveHandles(l.liveness - l.inflight)
		}
	}()

	// Phase 1: update cached now.
	l.now = time.Now()

	// Snapshot handles queued for close by the *previous* iteration before
	// anything in this one can add to closePending; this is what makes
	// close_cb's one-iteration deferral hold even though timers (phase 2,
	// right below) can themselves call Close.
	l.closeReady = l.closePending
	l.closePending = nil

	// Phase 2: run expired timers, each at most once this iteration.
	l.runDueTimers()

	// Phase 3: pending I/O callbacks deferred from the previous iteration.
	pending := l.pendingIO
	l.pendingIO = l.pendingIONext
	l.pendingIONext = nil
	for _, fn := range pending {
		fn()
	}

	// Phase 4: idle callbacks, every iteration the loop is non-empty.
	if l.liveness > 0 {
		for _, idle := range l.idles {
			if idle.hasFlag(flagActive) {
				idle.cb(idle)
			}
		}
	}

	// Phase 5: prepare callbacks, just before blocking.
	for _, prep := range l.prepares {
		if prep.hasFlag(flagActive) {
			prep.cb(prep)
		}
	}

	// Phase 6: compute timeout.
	var timeout time.Duration
	hasImmediate := l.anyActive(idleHandlesAsHandles(l.idles)) ||
		l.anyActive(checkHandlesAsHandles(l.checks)) ||
		len(l.closeReady) > 0
	if !allowBlock || hasImmediate {
		timeout = 0
	} else if l.timers.Len() > 0 {
		timeout = l.timers[0].deadline.Sub(l.now)
		if timeout < 0 {
			timeout = 0
		}
	} else {
		timeout = -1
	}

	// Phase 7: block in the backend poller.
	events, _ := l.bk.wait(timeout)

	// Phase 8: run I/O callbacks produced by the poller.
	l.dispatchEvents(events)
	l.dispatchAsync()

	// Phase 9: check callbacks.
	for _, chk := range l.checks {
		if chk.hasFlag(flagActive) {
			chk.cb(chk)
		}
	}

	// Phase 10: close callbacks for handles marked closing on previous
	// iterations.
	ready := l.closeReady
	l.closeReady = nil
	for _, h := range ready {
		h.runCloseCB()
		l.liveness--
	}
}

func (l *Loop) anyActive(hs []*Handle) bool {
	for _, h := range hs {
		if h.hasFlag(flagActive) {
			return true
		}
	}
	return false
}

func checkHandlesAsHandles(cs []*Check) []*Handle {
	hs := make([]*Handle, len(cs))
	for i, c := range cs {
		hs[i] = &c.Handle
	}
	return hs
}

func idleHandlesAsHandles(is []*Idle) []*Handle {
	hs := make([]*Handle, len(is))
	for i, idl := range is {
		hs[i] = &idl.Handle
	}
	return hs
}

func (l *Loop) runDueTimers() {
	// Repeating timers are re-armed only after the sweep, so one re-armed to
	// a deadline <= now waits for the next iteration instead of firing twice.
	var repeat []*Timer
	for l.timers.Len() > 0 {
		t := l.timers[0]
		if t.deadline.After(l.now) {
			break
		}
		l.timers.Pop()
		t.heapIdx = -1
		cb := t.cb
		period := t.period
		if period <= 0 {
			t.deactivate()
		}
		if cb != nil {
			cb(t)
		}
		if period > 0 && t.hasFlag(flagActive) {
			repeat = append(repeat, t)
		}
	}
	for _, t := range repeat {
		if t.hasFlag(flagActive) && t.heapIdx < 0 {
			t.rearm(l.now)
		}
	}
}

func (l *Loop) dispatchEvents(events []pollEvent) {
	for _, ev := range events {
		if owner, ok := l.fdOwners[ev.fd]; ok {
			owner.onEvent(ev)
		}
	}
}
