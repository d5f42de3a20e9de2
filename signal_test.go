//go:build !windows

package nyx_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestSignalDeliversOnLoopThread sends the process a real SIGUSR1 and
// checks that the loop delivers it to the handle's callback, which stops
// the handle so that Run returns.
func TestSignalDeliversOnLoopThread(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	sig := nyx.NewSignal(loop)
	received := make(chan syscall.Signal, 1)
	sig.Start(func(s *nyx.Signal, got syscall.Signal) {
		received <- got
		s.Stop()
	}, syscall.SIGUSR1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = syscall.Kill(syscall.Getpid(), syscall.SIGUSR1)
	}()

	loop.Run(nyx.RunDefault)

	select {
	case got := <-received:
		require.Equal(t, syscall.SIGUSR1, got)
	default:
		t.Fatal("signal callback never fired")
	}
}
