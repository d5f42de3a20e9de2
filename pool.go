package nyx

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// WorkFn runs on a pool goroutine and may block arbitrarily (filesystem
// syscalls, DNS resolution, user CPU work); it must not touch the loop or
// any handle directly (spec.md §4.5, §5).
type WorkFn func() (result any, err error)

// DoneFn is always invoked exactly once on the loop thread, per work item,
// whether it ran to completion or was cancelled before starting.
type DoneFn func(result any, err error, cancelled bool)

// Pool is a bounded-parallel worker pool for operations that cannot be
// made non-blocking on the current platform (filesystem ops, DNS
// resolution, user work), per spec.md §4.5. Concurrency is bounded with a
// weighted semaphore, grounded on the abcxyz-pkg workerpool.go pattern
// (golang.org/x/sync/semaphore); submission is one goroutine per item, so
// the queue itself is the semaphore's internal FIFO waiter list rather
// than an explicit list structure.
type Pool struct {
	loop *Loop
	sem  *semaphore.Weighted

	async *Async

	compMu      sync.Mutex
	completions []*workItem

	outstanding int // items submitted but not yet drained; loop thread only
	running     atomic.Int32
}

type workItem struct {
	req     *Request
	fn      WorkFn
	done    DoneFn
	cancel  context.CancelFunc
	started atomic.Bool

	result any
	err    error
}

// NewPool creates a worker pool bound to loop with the given number of
// concurrent slots. size <= 0 defaults to runtime.NumCPU() (at least 1),
// mirroring spec.md §4.5's "min(physical cores, configured max)" default.
func NewPool(loop *Loop, size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	if size < 1 {
		size = 1
	}
	p := &Pool{loop: loop, sem: semaphore.NewWeighted(int64(size))}
	p.async = NewAsync(loop, func(*Async) { p.drain() })
	// The pool itself shouldn't keep the loop alive while idle; Submit
	// reactivates it for the duration of any outstanding work.
	p.async.deactivate()
	return p
}

// WorkReq is the handle returned by Submit, allowing synchronous
// cancellation of a not-yet-started item (spec.md §4.5).
type WorkReq struct {
	*Request
	item *workItem
}

// Cancel attempts to cancel the item before it starts running. Returns
// true if the item had not yet acquired a pool slot (i.e. cancellation
// took effect); a running item cannot be cancelled and Cancel returns
// false, with done still firing normally on completion.
func (w *WorkReq) Cancel() bool {
	w.item.cancel()
	return !w.item.started.Load()
}

// Submit enqueues work for execution on a pool goroutine; done is invoked
// on the loop thread once, either after fn returns or after a successful
// Cancel.
func (p *Pool) Submit(fn WorkFn, done DoneFn) *WorkReq {
	req := newRequest(p.loop, ReqWork, nil)
	ctx, cancel := context.WithCancel(context.Background())
	item := &workItem{req: req, fn: fn, done: done, cancel: cancel}
	p.outstanding++
	p.async.activate()
	go p.run(ctx, item)
	return &WorkReq{Request: req, item: item}
}

func (p *Pool) run(ctx context.Context, item *workItem) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		// Cancelled before it ever ran.
		p.complete(item)
		return
	}
	item.started.Store(true)
	p.running.Add(1)
	defer p.sem.Release(1)
	defer p.running.Add(-1)

	item.result, item.err = item.fn()
	p.complete(item)
}

func (p *Pool) complete(item *workItem) {
	p.compMu.Lock()
	p.completions = append(p.completions, item)
	p.compMu.Unlock()
	p.async.Send()
}

// drain runs on the loop thread (invoked via the pool's Async) and
// delivers every finished/cancelled item's done callback in FIFO
// completion order (spec.md §4.5, §5).
func (p *Pool) drain() {
	p.compMu.Lock()
	items := p.completions
	p.completions = nil
	p.compMu.Unlock()

	for _, item := range items {
		cancelled := !item.started.Load()
		item.req.release()
		if item.done != nil {
			if cancelled {
				item.done(nil, NewError(ECANCELED, nil), true)
			} else {
				var err error
				if item.err != nil {
					err = mapErrno(item.err)
				}
				item.done(item.result, err, false)
			}
		}
		p.outstanding--
	}
	if p.loop.metrics != nil {
		running := int(p.running.Load())
		queued := p.outstanding - running
		if queued < 0 {
			queued = 0
		}
		p.loop.metrics.SetPoolStats(queued, running)
	}
	if p.outstanding == 0 {
		p.async.deactivate()
	}
}
