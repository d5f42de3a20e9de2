//go:build linux

package nyx

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollBackend implements the readiness-model backend from spec.md §4.3 on
// Linux via epoll(7), grounded on the epoll usage pattern in
// NLipatov-TunGo's tun.go (golang.org/x/sys/unix, EpollCreate1/EpollCtl).
type epollBackend struct {
	epfd    int
	wakeFd  int // eventfd used by wake()
	events  []unix.EpollEvent
}

func newBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	b := &epollBackend{epfd: epfd, wakeFd: wakeFd, events: make([]unix.EpollEvent, 256)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}
	return b, nil
}

func toEpollMask(ev ioEvent) uint32 {
	var m uint32
	if ev&evReadable != 0 {
		m |= unix.EPOLLIN
	}
	if ev&evWritable != 0 {
		m |= unix.EPOLLOUT
	}
	return m
}

func (b *epollBackend) add(fd int, ev ioEvent) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: toEpollMask(ev), Fd: int32(fd)})
}

func (b *epollBackend) mod(fd int, ev ioEvent) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: toEpollMask(ev), Fd: int32(fd)})
}

func (b *epollBackend) del(fd int) error {
	err := unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *epollBackend) wait(timeout time.Duration) ([]pollEvent, error) {
	ms := clampTimeoutMS(timeout)
	for {
		n, err := unix.EpollWait(b.epfd, b.events, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		out := make([]pollEvent, 0, n)
		for i := 0; i < n; i++ {
			e := b.events[i]
			fd := int(e.Fd)
			if fd == b.wakeFd {
				drainEventfd(b.wakeFd)
				continue
			}
			var pe pollEvent
			pe.fd = fd
			if e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				pe.ev |= evReadable
			}
			if e.Events&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
				pe.ev |= evWritable
			}
			if e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				pe.ev |= evDisconnect
			}
			out = append(out, pe)
		}
		return out, nil
	}
}

func drainEventfd(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != unix.EAGAIN {
			return
		}
	}
}

func (b *epollBackend) wake() error {
	var one [8]byte
	one[7] = 1
	_, err := unix.Write(b.wakeFd, one[:])
	if err == unix.EAGAIN {
		return nil // counter already non-zero, coalesced
	}
	return err
}

func (b *epollBackend) close() error {
	unix.Close(b.wakeFd)
	return unix.Close(b.epfd)
}
