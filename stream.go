package nyx

import (
	"container/list"
	"net"
	"syscall"
)

// AllocCB supplies a buffer for the next read; returning nil or a
// zero-length slice is treated as ENOMEM by the engine.
type AllocCB func(suggestedSize int) []byte

// ReadCB delivers one read completion. err is EOF exactly once per
// ReadStart, after which no further ReadCB fires until ReadStart is
// called again.
type ReadCB func(s *Stream, data []byte, err error)

// WriteCB delivers one write completion, in the same order the writes
// were submitted (spec.md §8 invariant 4).
type WriteCB func(req *WriteReq, n int, err error)

// ShutdownCB delivers shutdown completion.
type ShutdownCB func(req *ShutdownReq, err error)

// ConnectCB delivers the outcome of Connect.
type ConnectCB func(req *ConnectReq, err error)

// ConnectionCB is invoked on a listening stream once per incoming
// connection. If the callback does not call Accept, the peer is kept and
// the listener stops polling for new connections until a later Accept
// retrieves it (spec.md §4.4 back-pressure).
type ConnectionCB func(s *Stream, err error)

// DefaultBacklog is the listen backlog used by ListenTCP.
const DefaultBacklog = 128

type writeBuf struct {
	buf []byte
	off int
}

// WriteReq is a queued write; Request.release runs exactly once, right
// before WriteCB fires.
type WriteReq struct {
	*Request
	bufs []writeBuf
	cb   WriteCB
}

// ShutdownReq represents one in-flight Shutdown (spec.md §3: at most one
// pending per stream).
type ShutdownReq struct {
	*Request
	cb ShutdownCB
}

// ConnectReq represents one in-flight Connect.
type ConnectReq struct {
	*Request
	cb ConnectCB
}

// Stream is the read/write/shutdown/accept/connect state machine from
// spec.md §4.4, grounded on the teacher's aiocb/fdDesc split (gaio's
// watcher.go) but reorganized around the Handle/backend abstractions: one
// Stream per fd, a FIFO write queue, and a single pending shutdown.
type Stream struct {
	Handle
	fd int

	allocCB      AllocCB
	readCB       ReadCB
	readActive   bool
	eofDelivered bool

	writeQ      *list.List // *WriteReq
	curInterest ioEvent

	shutdownReq *ShutdownReq
	shutting    bool

	connCB          ConnectionCB
	pendingAcceptFD int
	listening       bool

	connectReq *ConnectReq
	connecting bool

	fatal error // sticky per-handle error, spec.md §7
}

func newStream(loop *Loop, kind Kind, fd int) *Stream {
	s := &Stream{Handle: newHandle(loop, kind), fd: fd, writeQ: list.New(), pendingAcceptFD: -1}
	s.Handle.Ref()
	loop.registerFD(fd, 0, s)
	s.detach = func() { s.teardown() }
	s.cancelPend = func() { s.cancelAll() }
	return s
}

func (s *Stream) updateActive() {
	active := s.readActive || s.writeQ.Len() > 0 || s.shutdownReq != nil || s.listening || s.connecting
	if active {
		s.activate()
	} else {
		s.deactivate()
	}
}

func (s *Stream) teardown() {
	_ = s.loop.unregisterFD(s.fd)
	if s.fd >= 0 {
		syscall.Close(s.fd)
		s.fd = -1
	}
}

func (s *Stream) cancelAll() {
	for e := s.writeQ.Front(); e != nil; e = e.Next() {
		wr := e.Value.(*WriteReq)
		wr.Request.release()
		if wr.cb != nil {
			wr.cb(wr, 0, NewError(ECANCELED, nil))
		}
	}
	s.writeQ.Init()
	if s.shutdownReq != nil {
		req := s.shutdownReq
		s.shutdownReq = nil
		req.Request.release()
		if req.cb != nil {
			req.cb(req, NewError(ECANCELED, nil))
		}
	}
	if s.connectReq != nil {
		req := s.connectReq
		s.connectReq = nil
		req.Request.release()
		if req.cb != nil {
			req.cb(req, NewError(ECANCELED, nil))
		}
	}
	// A peer already pulled off the accept queue but not yet retrieved via
	// Accept() is never coming back for it: deliver the cancellation spec.md
	// §8 promises and close the orphaned fd ourselves.
	if s.pendingAcceptFD >= 0 {
		fd := s.pendingAcceptFD
		s.pendingAcceptFD = -1
		syscall.Close(fd)
		if s.connCB != nil {
			s.connCB(s, NewError(ECANCELED, nil))
		}
	}
}

// ReadStart arms the stream for reading: whenever the backend reports
// readability, the engine repeatedly allocates a buffer, performs one
// non-blocking read, and delivers it, until the syscall would block, EOF
// occurs, or an error is returned (spec.md §4.4).
func (s *Stream) ReadStart(alloc AllocCB, cb ReadCB) error {
	if s.hasFlag(flagClosing) {
		return NewError(EBADF, nil)
	}
	s.allocCB = alloc
	s.readCB = cb
	s.readActive = true
	s.eofDelivered = false
	s.setInterest(s.curInterest | evReadable)
	s.updateActive()
	return nil
}

// ReadStop cancels future read delivery. Calling it within the same
// ReadCB that just started it delivers zero further read events (spec.md
// §8 boundary behavior).
func (s *Stream) ReadStop() {
	s.readActive = false
	s.setInterest(s.curInterest &^ evReadable)
	s.updateActive()
}

// Write enqueues bufs for writing. The engine attempts an immediate
// non-blocking write; any remainder is queued and drained in FIFO order
// on future writability (spec.md §4.4).
func (s *Stream) Write(bufs [][]byte, cb WriteCB) *WriteReq {
	req := newRequest(s.loop, ReqWrite, &s.Handle)
	wr := &WriteReq{Request: req, cb: cb}
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		wr.bufs = append(wr.bufs, writeBuf{buf: cp})
	}

	if s.shutting {
		s.loop.deferIO(func() {
			req.release()
			if cb != nil {
				cb(wr, 0, NewError(ESHUTDOWN, nil))
			}
		})
		return wr
	}
	if s.fatal != nil {
		s.loop.deferIO(func() {
			req.release()
			if cb != nil {
				cb(wr, 0, s.fatal)
			}
		})
		return wr
	}

	s.writeQ.PushBack(wr)
	s.updateActive()
	s.pumpWrite()
	return wr
}

// Shutdown waits for the write queue to drain, then half-closes the write
// side. Subsequent writes fail with ESHUTDOWN (spec.md §4.4).
func (s *Stream) Shutdown(cb ShutdownCB) (*ShutdownReq, error) {
	if s.shutdownReq != nil {
		return nil, NewError(EINVAL, nil)
	}
	req := newRequest(s.loop, ReqShutdown, &s.Handle)
	sreq := &ShutdownReq{Request: req, cb: cb}
	s.shutdownReq = sreq
	s.shutting = true
	s.updateActive()
	s.pumpWrite()
	return sreq, nil
}

// onEvent is the fdOwner callback invoked by the loop when the backend
// reports activity on this stream's fd.
func (s *Stream) onEvent(ev pollEvent) {
	if ev.completion {
		s.onCompletion(ev)
		return
	}
	if s.connecting {
		s.finishConnect()
		return
	}
	if s.listening {
		s.pumpAccept()
		return
	}
	if ev.ev&evReadable != 0 && s.readActive && !s.eofDelivered {
		s.pumpRead()
	}
	if ev.ev&(evWritable|evDisconnect) != 0 {
		s.pumpWrite()
	}
}

func (s *Stream) pumpRead() {
	for s.readActive && !s.eofDelivered {
		buf := s.allocCB(65536)
		if len(buf) == 0 {
			s.deliverRead(nil, NewError(ENOMEM, nil))
			return
		}
		n, err := rawRead(s.fd, buf)
		if err == syscall.EAGAIN {
			return
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			mapped := mapErrno(err)
			s.fatal = mapped
			s.deliverRead(nil, mapped)
			return
		}
		if n == 0 {
			s.eofDelivered = true
			s.setInterest(s.curInterest &^ evReadable)
			s.deliverRead(nil, NewError(EOF, nil))
			return
		}
		s.deliverRead(buf[:n], nil)
	}
}

func (s *Stream) deliverRead(data []byte, err error) {
	if s.readCB != nil {
		s.readCB(s, data, err)
	}
}

func (s *Stream) pumpWrite() {
	for s.writeQ.Len() > 0 {
		front := s.writeQ.Front()
		wr := front.Value.(*WriteReq)
		done, err := s.drainOne(wr)
		if err != nil {
			s.failAllWrites(err)
			s.shutdownIfPending()
			s.updateActive()
			return
		}
		if !done {
			s.setInterest(s.curInterest | evWritable)
			s.updateActive()
			return
		}
		s.writeQ.Remove(front)
		total := 0
		for _, b := range wr.bufs {
			total += len(b.buf)
		}
		wr.Request.release()
		if wr.cb != nil {
			wr.cb(wr, total, nil)
		}
	}
	s.setInterest(s.curInterest &^ evWritable)
	s.shutdownIfPending()
	s.updateActive()
}

// drainOne attempts to finish writing wr's remaining bytes without
// blocking. done=true means wr is fully written.
func (s *Stream) drainOne(wr *WriteReq) (done bool, err error) {
	for i := range wr.bufs {
		b := &wr.bufs[i]
		for b.off < len(b.buf) {
			n, werr := rawWrite(s.fd, b.buf[b.off:])
			if werr == syscall.EAGAIN {
				return false, nil
			}
			if werr == syscall.EINTR {
				continue
			}
			if werr != nil {
				return false, mapErrno(werr)
			}
			b.off += n
		}
	}
	return true, nil
}

// failAllWrites fails the write at the head (which hit the error) and
// every subsequent queued write with the same error: a connection-reset
// class error is fatal for the whole handle (spec.md §4.4, §7).
func (s *Stream) failAllWrites(err error) {
	s.fatal = err
	for s.writeQ.Len() > 0 {
		front := s.writeQ.Front()
		wr := front.Value.(*WriteReq)
		s.writeQ.Remove(front)
		wr.Request.release()
		if wr.cb != nil {
			wr.cb(wr, 0, err)
		}
	}
}

func (s *Stream) shutdownIfPending() {
	if s.shutdownReq == nil || s.writeQ.Len() > 0 {
		return
	}
	req := s.shutdownReq
	s.shutdownReq = nil
	var err error
	if mapped := mapErrno(rawShutdownWrite(s.fd)); mapped != nil {
		err = mapped
	}
	req.Request.release()
	if req.cb != nil {
		req.cb(req, err)
	}
}

// LocalAddr returns the locally bound address, useful to discover the
// port a listener received after binding to port 0.
func (s *Stream) LocalAddr() (net.Addr, error) {
	sa, err := syscall.Getsockname(s.fd)
	if err != nil {
		return nil, mapErrno(err)
	}
	return sockaddrToTCPAddr(sa)
}

func (s *Stream) setInterest(ev ioEvent) {
	if ev == s.curInterest {
		return
	}
	s.curInterest = ev
	_ = s.loop.modifyFD(s.fd, ev)
}

func sockaddrToTCPAddr(sa syscall.Sockaddr) (*net.TCPAddr, error) {
	switch a := sa.(type) {
	case *syscall.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	case *syscall.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}, nil
	default:
		return nil, NewError(EINVAL, nil)
	}
}
