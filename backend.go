package nyx

import "time"

// ioEvent is the set of readiness/completion conditions the backend can
// report for one descriptor, per spec.md §4.3.
type ioEvent uint8

const (
	evReadable ioEvent = 1 << iota
	evWritable
	evDisconnect
)

// pollEvent is one reported event: either "fd is ready" (readiness model)
// or "this request's I/O has completed" (completion model, where req is
// non-nil and bytes/err carry the completion result).
type pollEvent struct {
	fd    int
	ev    ioEvent
	req   *streamIO // set only by the completion backend
	bytes int
	err   error

	// completion is true when bytes/err already describe a finished
	// operation (completion model); false means fd is merely ready and
	// the stream engine must still attempt the non-blocking syscall
	// itself (readiness model).
	completion bool
}

// backend is the unified capability from spec.md §4.3 and §4.9 (design
// notes): register/modify/unregister/wait, presented identically whether
// the underlying OS facility is readiness-based (epoll/kqueue) or
// completion-based (IOCP).
type backend interface {
	// add starts monitoring fd for the given event set.
	add(fd int, ev ioEvent) error
	// mod changes the monitored event set for fd.
	mod(fd int, ev ioEvent) error
	// del stops monitoring fd.
	del(fd int) error
	// wait blocks for up to timeout (-1 blocks indefinitely, 0 polls) and
	// returns ready events. The epoll and IOCP backends cap the timeout at
	// math.MaxInt32 ms themselves via clampTimeoutMS.
	wait(timeout time.Duration) ([]pollEvent, error)
	// wake unblocks a concurrent wait() call; used by the async wakeup.
	wake() error
	// close releases backend resources.
	close() error
}

// streamIO is the minimal view of a stream that a completion packet carries
// back to the loop (overlappedOp.io, reported as pollEvent.req); defined here (rather than in stream.go) so backend.go has no
// forward dependency on the stream engine's internals.
type streamIO struct {
	fd int
}

const maxPollTimeoutMS = 1<<31 - 1 // INT32_MAX, spec.md §4.3

func clampTimeoutMS(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d.Milliseconds()
	if ms > maxPollTimeoutMS {
		return maxPollTimeoutMS
	}
	return int(ms)
}
