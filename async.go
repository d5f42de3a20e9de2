package nyx

import "sync/atomic"

// AsyncCB is invoked on the loop thread after a Send (or several coalesced
// Sends) from any other goroutine.
type AsyncCB func(a *Async)

// Async is the thread-safe cross-thread wakeup primitive from spec.md
// §4.6: any goroutine may call Send; repeated Sends between loop
// iterations coalesce into a single callback invocation (§8 invariant 5).
// It is, along with Pool.Submit, the only handle operation legal from a
// goroutine other than the loop's own.
type Async struct {
	Handle
	cb      AsyncCB
	pending atomic.Bool
}

// NewAsync creates an active Async handle bound to loop; cb fires on the
// loop thread whenever Send has been called since the last firing.
func NewAsync(loop *Loop, cb AsyncCB) *Async {
	a := &Async{Handle: newHandle(loop, KindAsync), cb: cb}
	a.Handle.Ref()
	a.activate()
	a.detach = func() {
		for i, x := range loop.asyncs {
			if x == a {
				loop.asyncs = append(loop.asyncs[:i], loop.asyncs[i+1:]...)
				break
			}
		}
	}
	loop.asyncs = append(loop.asyncs, a)
	return a
}

// Send requests the loop run cb once more. Safe to call from any
// goroutine, including concurrently; never blocks the caller (spec.md
// §4.6c): the flag set is a single atomic store, and wake() on the
// backend is non-blocking by construction (eventfd/self-pipe/IOCP post).
func (a *Async) Send() {
	if a.hasFlag(flagClosing) || a.hasFlag(flagClosed) {
		return
	}
	if a.pending.CompareAndSwap(false, true) {
		_ = a.loop.bk.wake()
	}
}

// dispatchAsync runs in loop phase 8, after the backend poller returns. It
// visits every Async bound to the loop and fires those with a pending
// Send, clearing the flag first so a Send racing in during the callback
// is not lost (it simply schedules another firing next iteration).
func (l *Loop) dispatchAsync() {
	for _, a := range l.asyncs {
		if a.pending.CompareAndSwap(true, false) && a.cb != nil {
			a.cb(a)
		}
	}
}
