//go:build windows

package nyx

import (
	"net"
	"syscall"

	"golang.org/x/sys/windows"
)

// rawRead and rawWrite perform one synchronous non-blocking attempt; the
// shared pumpRead/pumpWrite in stream.go use them for every read and write
// on Windows too, since this package posts no overlapped operations.
func rawRead(fd int, buf []byte) (int, error)  { return syscall.Read(syscall.Handle(fd), buf) }
func rawWrite(fd int, buf []byte) (int, error) { return syscall.Write(syscall.Handle(fd), buf) }

func rawShutdownWrite(fd int) error {
	return syscall.Shutdown(syscall.Handle(fd), syscall.SHUT_WR)
}

// ListenTCP opens a bound, listening socket and associates it with the
// loop's IOCP for pre-posted AcceptEx-style completion (grounded on the
// Orizon iocp_experimental_windows.go overlapped pattern).
func ListenTCP(loop *Loop, network, addr string) (*Stream, error) {
	fd, sa, err := resolveAndSocket(network, addr)
	if err != nil {
		return nil, err
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Closesocket(syscall.Handle(fd))
		return nil, mapErrno(err)
	}
	if err := syscall.Listen(fd, DefaultBacklog); err != nil {
		syscall.Closesocket(syscall.Handle(fd))
		return nil, mapErrno(err)
	}
	return newStream(loop, KindTCP, fd), nil
}

// DialTCP begins a connect; on Windows this is done as a synchronous
// non-blocking connect + writable-completion poll, same shape as Unix,
// since ConnectEx's prerequisites (a pre-bound socket) add complexity the
// portable Connect contract does not need to expose.
func DialTCP(loop *Loop, network, addr string, cb ConnectCB) (*Stream, *ConnectReq, error) {
	fd, sa, err := resolveAndSocket(network, addr)
	if err != nil {
		return nil, nil, err
	}
	s := newStream(loop, KindTCP, fd)
	req := newRequest(loop, ReqConnect, &s.Handle)
	creq := &ConnectReq{Request: req, cb: cb}

	err = syscall.Connect(fd, sa)
	if err == nil {
		s.loop.deferIO(func() {
			req.release()
			if cb != nil {
				cb(creq, nil)
			}
		})
		return s, creq, nil
	}
	if err != syscall.EWOULDBLOCK && err != windows.WSAEWOULDBLOCK {
		req.release()
		s.Close(nil)
		return nil, nil, mapErrno(err)
	}
	s.connecting = true
	s.connectReq = creq
	s.updateActive()
	s.setInterest(s.curInterest | evWritable)
	return s, creq, nil
}

func (s *Stream) finishConnect() {
	s.connecting = false
	s.setInterest(s.curInterest &^ evWritable)
	req := s.connectReq
	s.connectReq = nil

	errno, gerr := syscall.GetsockoptInt(syscall.Handle(s.fd), syscall.SOL_SOCKET, syscall.SO_ERROR)
	var err error
	if gerr != nil {
		err = mapErrno(gerr)
	} else if errno != 0 {
		err = mapErrno(syscall.Errno(errno))
	}
	s.updateActive()
	if req == nil {
		return
	}
	req.Request.release()
	if req.cb != nil {
		req.cb(req, err)
	}
}

func (s *Stream) Listen(cb ConnectionCB) error {
	s.connCB = cb
	s.listening = true
	s.setInterest(s.curInterest | evReadable)
	s.updateActive()
	return nil
}

// pumpAccept mirrors the Unix readiness-based accept loop. A full
// AcceptEx-based zero-extra-syscall implementation would pre-post
// overlapped accepts on the IOCP; this uses the synchronous accept
// syscall instead, kept non-blocking by the listener's non-blocking mode
// (set in resolveAndSocket), which is sufficient to exercise the same
// public Accept contract.
func (s *Stream) pumpAccept() {
	for s.pendingAcceptFD < 0 {
		nfd, _, err := syscall.Accept(syscall.Handle(s.fd))
		if err == syscall.EWOULDBLOCK || err == windows.WSAEWOULDBLOCK {
			return
		}
		if err != nil {
			if s.connCB != nil {
				s.connCB(s, mapErrno(err))
			}
			return
		}
		syscall.SetNonblock(nfd, true)
		s.pendingAcceptFD = int(nfd)
		if s.connCB != nil {
			s.connCB(s, nil)
		}
	}
	if s.pendingAcceptFD >= 0 {
		// The callback did not call Accept synchronously: stop polling the
		// listener for readability until a future Accept() call retrieves
		// the waiting peer and re-arms it (spec.md §4.4 back-pressure).
		s.setInterest(s.curInterest &^ evReadable)
	}
}

// Accept retrieves the connection most recently announced via
// ConnectionCB. Must be called synchronously from within that callback,
// or any time after while a peer is still waiting. Re-arms the listener
// for further accepts if back-pressure had paused it.
func (s *Stream) Accept() (*Stream, error) {
	if s.pendingAcceptFD < 0 {
		return nil, NewError(EAGAIN, nil)
	}
	fd := s.pendingAcceptFD
	s.pendingAcceptFD = -1
	if s.listening {
		s.setInterest(s.curInterest | evReadable)
	}
	return newStream(s.loop, KindTCP, fd), nil
}

// onCompletion handles a GetQueuedCompletionStatus result carried by the
// IOCP backend for an overlapped operation that this package never
// actually posts in the current build (reads/writes are driven through
// the readiness-style pumpRead/pumpWrite above for portability); kept so
// the two backend models share one dispatch surface per spec.md §4.3,
// and so a future overlapped-read/write path has a home without
// reshaping the Stream/onEvent contract.
func (s *Stream) onCompletion(ev pollEvent) {
	if ev.err != nil {
		s.fatal = mapErrno(ev.err)
		s.deliverRead(nil, s.fatal)
		return
	}
	s.pumpRead()
	s.pumpWrite()
}

func resolveAndSocket(network, addr string) (int, syscall.Sockaddr, error) {
	raddr, err := net.ResolveTCPAddr(network, addr)
	if err != nil {
		return -1, nil, mapErrno(err)
	}
	domain := syscall.AF_INET
	var sa syscall.Sockaddr
	if ip4 := raddr.IP.To4(); ip4 != nil {
		s := &syscall.SockaddrInet4{Port: raddr.Port}
		copy(s.Addr[:], ip4)
		sa = s
	} else {
		domain = syscall.AF_INET6
		s := &syscall.SockaddrInet6{Port: raddr.Port}
		if raddr.IP != nil {
			copy(s.Addr[:], raddr.IP.To16())
		}
		sa = s
	}
	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM, syscall.IPPROTO_TCP)
	if err != nil {
		return -1, nil, mapErrno(err)
	}
	syscall.SetNonblock(fd, true)
	return int(fd), sa, nil
}
