package nyx

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalCB delivers one received signal.
type SignalCB func(s *Signal, sig syscall.Signal)

// Signal is the handle kind from spec.md §3 for subscribing to OS
// signals. Delivery is bridged from Go's os/signal channel to the loop
// thread through an Async, the same cross-thread-wakeup pattern used by
// the worker pool and process reaping — os/signal's channel API is
// itself already goroutine-safe, so no raw sigaction/SIGCHLD demux is
// needed here (unlike a C libuv, which wires this at the OS level
// directly).
type Signal struct {
	Handle
	cb SignalCB

	ch    chan os.Signal
	async *Async

	mu      sync.Mutex
	pending []syscall.Signal
}

// NewSignal creates an inactive signal handle. Call Start to subscribe.
func NewSignal(loop *Loop) *Signal {
	s := &Signal{Handle: newHandle(loop, KindSignal)}
	s.Handle.Ref()
	s.detach = func() { s.stopLocked() }
	return s
}

// Start subscribes to sigs; cb fires on the loop thread once per received
// signal, in the order received.
func (s *Signal) Start(cb SignalCB, sigs ...syscall.Signal) {
	s.stopLocked()
	s.cb = cb
	s.ch = make(chan os.Signal, 16)
	osSigs := make([]os.Signal, len(sigs))
	for i, sg := range sigs {
		osSigs[i] = sg
	}
	signal.Notify(s.ch, osSigs...)
	s.async = NewAsync(s.loop, func(*Async) { s.drain() })
	go s.relay(s.ch, s.async)
	s.activate()
}

// Stop unsubscribes; no further SignalCB fires.
func (s *Signal) Stop() {
	s.stopLocked()
	s.deactivate()
}

func (s *Signal) stopLocked() {
	if s.ch != nil {
		signal.Stop(s.ch)
		close(s.ch)
		s.ch = nil
	}
	if s.async != nil {
		s.async.Close(nil)
		s.async = nil
	}
}

// relay runs on a dedicated goroutine, forwarding each signal into
// pending and waking the loop; it exits when Stop closes ch. ch and
// async are captured as parameters, not read from s, since Stop may
// replace those fields concurrently from the loop thread.
func (s *Signal) relay(ch chan os.Signal, async *Async) {
	for sig := range ch {
		if sg, ok := sig.(syscall.Signal); ok {
			s.mu.Lock()
			s.pending = append(s.pending, sg)
			s.mu.Unlock()
			async.Send()
		}
	}
}

func (s *Signal) drain() {
	s.mu.Lock()
	sigs := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, sg := range sigs {
		if s.cb != nil {
			s.cb(s, sg)
		}
	}
}
