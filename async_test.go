package nyx_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestAsyncCoalescesSends verifies spec.md's invariant that repeated
// Sends between loop iterations collapse into one callback invocation.
func TestAsyncCoalescesSends(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	fires := 0
	ready := make(chan struct{})
	async := nyx.NewAsync(loop, func(a *nyx.Async) {
		fires++
		a.Close(nil)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			async.Send()
		}()
	}
	close(ready)
	wg.Wait()

	loop.Run(nyx.RunDefault)
	require.Equal(t, 1, fires)
}

func TestAsyncSendAfterCloseIsNoop(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	fires := 0
	async := nyx.NewAsync(loop, func(a *nyx.Async) {
		fires++
		a.Close(nil)
	})
	async.Close(func(*nyx.Handle) { fires++ })

	loop.Run(nyx.RunDefault)
	require.Equal(t, 1, fires, "the pending close_cb should still fire once")

	async.Send() // must not panic or deliver anything further after close
	require.Equal(t, 1, fires)
}
