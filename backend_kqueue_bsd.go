//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package nyx

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend implements the readiness-model backend from spec.md §4.3 on
// BSD-family kernels (including Darwin) via kqueue(2), mirroring the same
// golang.org/x/sys/unix idiom used for the Linux epoll backend.
type kqueueBackend struct {
	kq      int
	wakeR   int // pipe read end, wake() writes to wakeW
	wakeW   int
	events  []unix.Kevent_t
	regs    map[int]ioEvent // current registered mask per fd, kqueue has no MOD
}

func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(kq)
		return nil, err
	}
	b := &kqueueBackend{kq: kq, wakeR: fds[0], wakeW: fds[1], events: make([]unix.Kevent_t, 256), regs: make(map[int]ioEvent)}
	changes := []unix.Kevent_t{
		{Ident: uint64(b.wakeR), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD},
	}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		b.close()
		return nil, err
	}
	return b, nil
}

func kqueueChanges(fd int, ev ioEvent) []unix.Kevent_t {
	var changes []unix.Kevent_t
	addOrDelete := func(filter int16, want bool) {
		flags := uint16(unix.EV_DELETE)
		if want {
			flags = unix.EV_ADD | unix.EV_ENABLE
		}
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags})
	}
	addOrDelete(unix.EVFILT_READ, ev&evReadable != 0)
	addOrDelete(unix.EVFILT_WRITE, ev&evWritable != 0)
	return changes
}

func (b *kqueueBackend) add(fd int, ev ioEvent) error {
	b.regs[fd] = ev
	_, err := unix.Kevent(b.kq, kqueueChanges(fd, ev), nil, nil)
	return err
}

func (b *kqueueBackend) mod(fd int, ev ioEvent) error {
	return b.add(fd, ev)
}

func (b *kqueueBackend) del(fd int) error {
	delete(b.regs, fd)
	_, err := unix.Kevent(b.kq, kqueueChanges(fd, 0), nil, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (b *kqueueBackend) wait(timeout time.Duration) ([]pollEvent, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	for {
		n, err := unix.Kevent(b.kq, nil, b.events, ts)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return nil, err
		}
		out := make([]pollEvent, 0, n)
		for i := 0; i < n; i++ {
			e := b.events[i]
			fd := int(e.Ident)
			if fd == b.wakeR {
				drainPipe(b.wakeR)
				continue
			}
			var pe pollEvent
			pe.fd = fd
			switch e.Filter {
			case unix.EVFILT_READ:
				pe.ev |= evReadable
			case unix.EVFILT_WRITE:
				pe.ev |= evWritable
			}
			if e.Flags&unix.EV_EOF != 0 {
				pe.ev |= evDisconnect
			}
			out = append(out, pe)
		}
		return out, nil
	}
}

func drainPipe(fd int) {
	var buf [64]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func (b *kqueueBackend) wake() error {
	var one [1]byte
	_, err := unix.Write(b.wakeW, one[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (b *kqueueBackend) close() error {
	unix.Close(b.wakeR)
	unix.Close(b.wakeW)
	return unix.Close(b.kq)
}
