package nyx

import "syscall"

// NewPipe wraps an already-open, non-blocking file descriptor (typically
// one end of an os.Pipe(), or a duplicated fd handed off from a stdio
// redirection) as a Stream, for the named-pipe / anonymous-pipe handle
// kind named in spec.md §3. It is the primitive process.go uses to wire
// up a child's stdin/stdout/stderr.
func NewPipe(loop *Loop, fd int) (*Stream, error) {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, mapErrno(err)
	}
	return newStream(loop, KindPipe, fd), nil
}
