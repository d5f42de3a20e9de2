package nyx

// Kind identifies the concrete type backing a Handle.
type Kind int

const (
	KindTimer Kind = iota
	KindTCP
	KindPipe
	KindUDP
	KindProcess
	KindAsync
	KindSignal
	KindPoll
	KindPrepare
	KindCheck
	KindIdle
	KindFSEvent
)

func (k Kind) String() string {
	switch k {
	case KindTimer:
		return "timer"
	case KindTCP:
		return "tcp"
	case KindPipe:
		return "pipe"
	case KindUDP:
		return "udp"
	case KindProcess:
		return "process"
	case KindAsync:
		return "async"
	case KindSignal:
		return "signal"
	case KindPoll:
		return "poll"
	case KindPrepare:
		return "prepare"
	case KindCheck:
		return "check"
	case KindIdle:
		return "idle"
	case KindFSEvent:
		return "fs-event"
	default:
		return "unknown"
	}
}

type flag uint32

const (
	flagActive flag = 1 << iota
	flagRef
	flagClosing
	flagClosed
	flagReadable
	flagWritable
	flagConnected
	flagListening
	flagShutting
	flagEOF
	flagReadPending
	flagWritePending
)

// CloseCB is invoked exactly once, in a later loop iteration than the close
// request, after a handle has been fully detached from every subsystem it
// participated in.
type CloseCB func(h *Handle)

// Handle is the base embedded by every concrete handle kind (Timer, TCP,
// Process, Async, ...). It owns the lifecycle bookkeeping described in
// spec.md §3: active/ref flags, the close protocol, and the loop-liveness
// contribution.
//
// Handle itself carries no I/O behavior; detach (subsystem-specific
// teardown: unregister from the backend poller, timer heap, process table,
// etc.) and cancelPend (fail in-flight requests on this handle with
// ECANCELED) are supplied by the concrete constructor as closures, since
// Go has no virtual-method override without an interface indirection that
// would cost every handle an allocation.
type Handle struct {
	loop  *Loop
	kind  Kind
	flags flag
	data  any // user data pointer, §6

	closeCB      CloseCB
	detach       func()
	cancelPend   func()
	closeNext    *Handle // intrusive singly-linked pending-close list
	queuedClose  bool
}

func newHandle(loop *Loop, kind Kind) Handle {
	return Handle{loop: loop, kind: kind}
}

// Kind returns the handle's concrete kind tag.
func (h *Handle) Kind() Kind { return h.kind }

// Data returns the user data pointer set by SetData.
func (h *Handle) Data() any { return h.data }

// SetData sets the user data pointer carried alongside the handle.
func (h *Handle) SetData(v any) { h.data = v }

func (h *Handle) hasFlag(f flag) bool { return h.flags&f != 0 }
func (h *Handle) setFlag(f flag)      { h.flags |= f }
func (h *Handle) clearFlag(f flag)    { h.flags &^= f }

// IsActive reports whether the handle is doing work that keeps the loop
// alive (subject also to Ref/Unref).
func (h *Handle) IsActive() bool { return h.hasFlag(flagActive) }

// IsClosing reports whether Close has been called on this handle.
func (h *Handle) IsClosing() bool { return h.hasFlag(flagClosing) }

// Ref marks the handle as contributing to loop liveness while active.
// Handles are ref'd by default when created.
func (h *Handle) Ref() {
	if !h.hasFlag(flagRef) {
		h.setFlag(flagRef)
		if h.hasFlag(flagActive) {
			h.loop.liveness++
		}
	}
}

// Unref removes the handle's contribution to loop liveness. Commonly used
// for handles whose presence should not by itself keep run() from
// returning (e.g. a housekeeping timer).
func (h *Handle) Unref() {
	if h.hasFlag(flagRef) {
		h.clearFlag(flagRef)
		if h.hasFlag(flagActive) {
			h.loop.liveness--
		}
	}
}

// HasRef reports the current ref'd state.
func (h *Handle) HasRef() bool { return h.hasFlag(flagRef) }

// activate transitions the handle to active, adjusting loop liveness iff
// the handle is ref'd. Idempotent.
func (h *Handle) activate() {
	if !h.hasFlag(flagActive) {
		h.setFlag(flagActive)
		if h.hasFlag(flagRef) {
			h.loop.liveness++
		}
	}
}

// deactivate transitions the handle to inactive, adjusting loop liveness
// iff the handle is ref'd. Idempotent.
func (h *Handle) deactivate() {
	if h.hasFlag(flagActive) {
		h.clearFlag(flagActive)
		if h.hasFlag(flagRef) {
			h.loop.liveness--
		}
	}
}

// Close implements the protocol from spec.md §4.8: idempotent per handle,
// cb fires at most once, never in the iteration that requested the close.
func (h *Handle) Close(cb CloseCB) {
	if h.hasFlag(flagClosing) || h.hasFlag(flagClosed) {
		return
	}
	h.setFlag(flagClosing)
	h.deactivate()

	if h.detach != nil {
		h.detach()
	}
	if h.cancelPend != nil {
		h.cancelPend()
	}

	h.closeCB = cb
	h.loop.enqueueClose(h)
}

// runCloseCB is invoked by the loop in phase 10, exactly once.
func (h *Handle) runCloseCB() {
	h.setFlag(flagClosed)
	if h.closeCB != nil {
		cb := h.closeCB
		h.closeCB = nil
		cb(h)
	}
}
