package nyx

import (
	"os"
	"sync"
	"syscall"
)

// StdioMode selects how one of a child's three standard streams is wired,
// per spec.md §4.7.
type StdioMode int

const (
	// StdioIgnore connects the child's stream to the OS null device.
	StdioIgnore StdioMode = iota
	// StdioInherit connects the child's stream directly to the parent's.
	StdioInherit
	// StdioPipe creates an anonymous pipe; the parent's end is returned as
	// a *Stream on the Process.
	StdioPipe
)

// ProcessOptions is the spawn contract from spec.md §4.7.
type ProcessOptions struct {
	// Path is the executable; Args[0] conventionally repeats it.
	Path string
	Args []string
	// Env, if nil, inherits the current process's environment.
	Env []string
	Cwd string
	// Stdio holds the mode for [stdin, stdout, stderr].
	Stdio [3]StdioMode
}

// ExitCB delivers a child's termination: exitStatus is valid only when the
// child exited normally (termSignal == 0).
type ExitCB func(p *Process, exitStatus int, termSignal int)

// Process is the child-process handle from spec.md §4.7. Spawning uses
// the standard library's os.StartProcess rather than a hand-rolled
// fork/exec: no third-party process-spawn library appears anywhere in the
// example pack, and os.StartProcess (backed by syscall.StartProcess) is
// the same primitive every Go program, including go's own os/exec, spawns
// through on both Unix and Windows — see DESIGN.md.
type Process struct {
	Handle
	pid    int
	proc   *os.Process
	exitCB ExitCB

	// Stdin, Stdout, Stderr are the parent's end of any StdioPipe stream,
	// nil for StdioIgnore/StdioInherit.
	Stdin, Stdout, Stderr *Stream

	exited     bool
	exitStatus int
	termSignal int

	exitAsync *Async

	waitMu    sync.Mutex
	waitState *os.ProcessState
	waitErr   error
}

// Spawn starts a child process. The returned Process is active (and thus
// keeps the loop alive, spec.md §3) until its exit has been delivered.
func Spawn(loop *Loop, opts ProcessOptions, cb ExitCB) (*Process, error) {
	p := &Process{Handle: newHandle(loop, KindProcess), exitCB: cb}
	p.Handle.Ref()

	files := [3]*os.File{}
	var parentEnds [3]*Stream
	for i := 0; i < 3; i++ {
		f, parent, err := stdioFile(loop, i, opts.Stdio[i])
		if err != nil {
			closeStdioFiles(files[:i])
			return nil, err
		}
		files[i] = f
		parentEnds[i] = parent
	}

	env := opts.Env
	if env == nil {
		env = os.Environ()
	}
	attr := &os.ProcAttr{
		Dir:   opts.Cwd,
		Env:   env,
		Files: []*os.File{files[0], files[1], files[2]},
	}

	proc, err := os.StartProcess(opts.Path, opts.Args, attr)
	closeChildEndsAfterFork(files[:], opts.Stdio[:])
	if err != nil {
		return nil, mapErrno(err)
	}

	p.proc = proc
	p.pid = proc.Pid
	p.Stdin, p.Stdout, p.Stderr = parentEnds[0], parentEnds[1], parentEnds[2]
	p.activate()
	loop.children[p.pid] = p
	p.detach = func() { delete(loop.children, p.pid) }
	if loop.metrics != nil {
		loop.metrics.RecordProcessSpawned()
	}

	// exitAsync is created here, on the loop thread, because Async/Handle
	// state may only be touched from the loop goroutine (spec.md §5); the
	// reap goroutine below only ever calls the thread-safe Async.Send.
	p.exitAsync = NewAsync(loop, func(a *Async) {
		a.Close(nil)
		p.deliverExit()
	})

	go p.reap()
	return p, nil
}

// reap blocks on the child's exit in a dedicated goroutine (portable on
// both Unix and Windows, unlike raw SIGCHLD demultiplexing) and hands the
// result back to the loop thread through a one-shot Async, the same
// cross-thread-wakeup primitive the worker pool uses.
func (p *Process) reap() {
	state, err := p.proc.Wait()
	p.waitMu.Lock()
	p.waitState, p.waitErr = state, err
	p.waitMu.Unlock()
	p.exitAsync.Send()
}

func (p *Process) deliverExit() {
	p.waitMu.Lock()
	state, waitErr := p.waitState, p.waitErr
	p.waitMu.Unlock()

	p.exited = true
	if waitErr == nil && state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				p.termSignal = int(ws.Signal())
			} else {
				p.exitStatus = ws.ExitStatus()
			}
		} else {
			p.exitStatus = state.ExitCode()
		}
	}
	p.deactivate()
	if p.loop.metrics != nil {
		p.loop.metrics.RecordProcessExited()
	}
	if p.exitCB != nil {
		p.exitCB(p, p.exitStatus, p.termSignal)
	}
}

// Kill sends sig to the child.
func (p *Process) Kill(sig syscall.Signal) error {
	if p.exited {
		return NewError(ESRCH, nil)
	}
	if err := p.proc.Signal(sig); err != nil {
		return mapErrno(err)
	}
	return nil
}

// KillPid sends sig to an arbitrary pid not necessarily owned by this
// loop, per SPEC_FULL.md's process-management expansion.
func KillPid(pid int, sig syscall.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return mapErrno(err)
	}
	if err := proc.Signal(sig); err != nil {
		return mapErrno(err)
	}
	return nil
}

func stdioFile(loop *Loop, fdNum int, mode StdioMode) (*os.File, *Stream, error) {
	switch mode {
	case StdioIgnore:
		f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, nil, mapErrno(err)
		}
		return f, nil, nil
	case StdioInherit:
		switch fdNum {
		case 0:
			return os.Stdin, nil, nil
		case 1:
			return os.Stdout, nil, nil
		default:
			return os.Stderr, nil, nil
		}
	case StdioPipe:
		return stdioPipePair(loop, fdNum)
	default:
		return nil, nil, NewError(EINVAL, nil)
	}
}

// stdioPipePair creates the anonymous pipe for one stdio stream and wraps
// the parent's end as a non-blocking *Stream.
func stdioPipePair(loop *Loop, fdNum int) (*os.File, *Stream, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, mapErrno(err)
	}
	var childFile, parentFile *os.File
	if fdNum == 0 {
		childFile, parentFile = r, w // child reads stdin, parent writes
	} else {
		childFile, parentFile = w, r // child writes stdout/stderr, parent reads
	}
	parentStream, err := NewPipe(loop, int(parentFile.Fd()))
	if err != nil {
		childFile.Close()
		parentFile.Close()
		return nil, nil, err
	}
	return childFile, parentStream, nil
}

func closeStdioFiles(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}

// closeChildEndsAfterFork closes the parent process's copy of any pipe fd
// handed to the child, so EOF is observable once the child exits.
func closeChildEndsAfterFork(files []*os.File, modes []StdioMode) {
	for i, mode := range modes {
		if mode == StdioPipe {
			files[i].Close()
		}
	}
}
