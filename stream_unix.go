//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package nyx

import (
	"net"
	"syscall"
)

// rawRead and rawWrite perform one non-blocking syscall attempt, mirroring
// the teacher's tryRead/tryWrite in gaio's watcher.go.
func rawRead(fd int, buf []byte) (int, error)  { return syscall.Read(fd, buf) }
func rawWrite(fd int, buf []byte) (int, error) { return syscall.Write(fd, buf) }

func rawShutdownWrite(fd int) error { return syscall.Shutdown(fd, syscall.SHUT_WR) }

// onCompletion never fires on the readiness-model backends (epoll/kqueue
// never set pollEvent.completion); only the IOCP backend does.
func (s *Stream) onCompletion(ev pollEvent) {}

// ListenTCP opens, binds and listens a non-blocking TCP socket on addr,
// wrapping it as a *Stream ready for Listen().
func ListenTCP(loop *Loop, network, addr string) (*Stream, error) {
	fd, sa, err := resolveAndSocket(network, addr)
	if err != nil {
		return nil, err
	}
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		syscall.Close(fd)
		return nil, mapErrno(err)
	}
	if err := syscall.Bind(fd, sa); err != nil {
		syscall.Close(fd)
		return nil, mapErrno(err)
	}
	if err := syscall.Listen(fd, DefaultBacklog); err != nil {
		syscall.Close(fd)
		return nil, mapErrno(err)
	}
	return newStream(loop, KindTCP, fd), nil
}

// DialTCP begins a non-blocking connect to addr; cb fires once the
// connection completes or fails (spec.md §4.4).
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
		// Connected synchronously (loopback, rare but legal).
		s.loop.deferIO(func() {
			req.release()
			if cb != nil {
				cb(creq, nil)
			}
		})
		return s, creq, nil
	}
	if err != syscall.EINPROGRESS {
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

	errno, gerr := syscall.GetsockoptInt(s.fd, syscall.SOL_SOCKET, syscall.SO_ERROR)
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

// Listen arms the stream to accept incoming connections (spec.md §4.4).
func (s *Stream) Listen(cb ConnectionCB) error {
	s.connCB = cb
	s.listening = true
	s.setInterest(s.curInterest | evReadable)
	s.updateActive()
	return nil
}

func (s *Stream) pumpAccept() {
	for s.pendingAcceptFD < 0 {
		nfd, _, err := syscall.Accept4(s.fd, syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if err == syscall.EAGAIN {
			return
		}
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			if s.connCB != nil {
				s.connCB(s, mapErrno(err))
			}
			return
		}
		s.pendingAcceptFD = nfd
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
	fd, err := syscall.Socket(domain, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, nil, mapErrno(err)
	}
	return fd, sa, nil
}
