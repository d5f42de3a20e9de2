//go:build windows

package nyx

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

// iocpBackend implements the completion-model backend from spec.md §4.3 on
// Windows via an I/O completion port, grounded on the
// SeleniaProject-Orizon iocp_experimental_windows.go example
// (golang.org/x/sys/windows, CreateIoCompletionPort /
// GetQueuedCompletionStatus / PostQueuedCompletionStatus).
//
// The completion backend does not poll for readiness: each
// GetQueuedCompletionStatus wakeup returns one completion packet, either a
// wake() packet or the completion of an overlapped operation on an
// associated handle. The stream engine in stream_windows.go posts no
// overlapped operations itself (see onCompletion there).
type iocpBackend struct {
	port windows.Handle
}

// wakeKey is the completion key used for async-wakeup packets; no real fd
// is ever registered with this value, since fds start at 0 and the port
// handle itself is never used as a key.
const wakeKey = ^uintptr(0)

func newBackend() (backend, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	return &iocpBackend{port: port}, nil
}

// add associates fd's underlying handle with the completion port. Every
// subsequent overlapped operation on that handle delivers its completion
// here regardless of which goroutine posted it.
func (b *iocpBackend) add(fd int, ev ioEvent) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), b.port, uintptr(fd), 0)
	return err
}

// mod is a no-op: association with an IOCP cannot be changed, only made;
// interest is instead controlled by which overlapped ops get posted.
func (b *iocpBackend) mod(fd int, ev ioEvent) error { return nil }

// del cannot disassociate a handle from a completion port short of closing
// it; the stream engine relies on CancelIoEx before the handle is closed to
// stop in-flight completions from arriving after release.
func (b *iocpBackend) del(fd int) error {
	return windows.CancelIoEx(windows.Handle(fd), nil)
}

func (b *iocpBackend) wait(timeout time.Duration) ([]pollEvent, error) {
	ms := clampTimeoutMS(timeout)
	var bytes uint32
	var key uintptr
	var ov *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(b.port, &bytes, &key, &ov, uint32(ms))
	if err == windows.WAIT_TIMEOUT {
		return nil, nil
	}
	if key == wakeKey {
		return nil, nil
	}
	pe := pollEvent{fd: int(key), bytes: int(bytes), completion: true}
	if ov != nil {
		if op := (*overlappedOp)(unsafe.Pointer(ov)); op != nil {
			pe.req = op.io
		}
	}
	if err != nil {
		pe.err = err
	}
	return []pollEvent{pe}, nil
}

func (b *iocpBackend) wake() error {
	return windows.PostQueuedCompletionStatus(b.port, 0, wakeKey, nil)
}

func (b *iocpBackend) close() error {
	return windows.CloseHandle(b.port)
}

// overlappedOp extends windows.Overlapped with a back-reference to the
// streamIO the pending operation belongs to, so wait() can hand the
// completion to the right stream without a separate lookup table -- the
// same technique as overlappedOp in the Orizon IOCP poller.
type overlappedOp struct {
	windows.Overlapped
	io *streamIO
}
