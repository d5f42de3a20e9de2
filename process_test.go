package nyx_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestProcessSpawnAndExit drives spec.md §4.7's spawn/reap contract: a
// child's stdout is piped back to the parent and its exit status observed
// once the loop delivers ExitCB.
func TestProcessSpawnAndExit(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	opts := nyx.ProcessOptions{
		Path: "/bin/echo",
		Args: []string{"echo", "hello"},
		Stdio: [3]nyx.StdioMode{
			nyx.StdioIgnore,
			nyx.StdioPipe,
			nyx.StdioIgnore,
		},
	}

	var exitStatus, termSignal int
	var exited bool

	proc, err := nyx.Spawn(loop, opts, func(p *nyx.Process, status int, sig int) {
		exited = true
		exitStatus = status
		termSignal = sig
	})
	require.NoError(t, err)
	require.NotNil(t, proc.Stdout)

	var out []byte
	proc.Stdout.ReadStart(
		func(int) []byte { return make([]byte, 4096) },
		func(s *nyx.Stream, data []byte, rerr error) {
			if rerr != nil {
				s.Close(nil)
				return
			}
			out = append(out, data...)
		},
	)

	loop.Run(nyx.RunDefault)
	require.True(t, exited)
	require.Equal(t, 0, exitStatus)
	require.Equal(t, 0, termSignal)
	require.Equal(t, "hello\n", string(out))
}

func TestProcessKillDeliversTermSignal(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	opts := nyx.ProcessOptions{
		Path:  "/bin/sleep",
		Args:  []string{"sleep", "30"},
		Stdio: [3]nyx.StdioMode{nyx.StdioIgnore, nyx.StdioIgnore, nyx.StdioIgnore},
	}

	var termSignal int
	proc, err := nyx.Spawn(loop, opts, func(p *nyx.Process, status int, sig int) {
		termSignal = sig
	})
	require.NoError(t, err)

	timer := nyx.NewTimer(loop)
	timer.Start(func(*nyx.Timer) {
		require.NoError(t, proc.Kill(syscall.SIGKILL))
	}, 0, 0)

	loop.Run(nyx.RunDefault)
	require.Equal(t, int(syscall.SIGKILL), termSignal)
}
