package nyx_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestPoolBoundsConcurrency submits more items than the pool's
// configured size and checks every item still completes, per spec.md
// §4.5 and §8 scenario 4 (100 items on a 4-worker pool).
func TestPoolBoundsConcurrency(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	const size = 4
	const total = 100
	pool := nyx.NewPool(loop, size)

	var mu sync.Mutex
	var running, maxRunning, completed int

	for i := 0; i < total; i++ {
		pool.Submit(
			func() (any, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()
				defer func() {
					mu.Lock()
					running--
					mu.Unlock()
				}()
				return nil, nil
			},
			func(result any, err error, cancelled bool) {
				require.NoError(t, err)
				require.False(t, cancelled)
				completed++
			},
		)
	}

	loop.Run(nyx.RunDefault)
	require.Equal(t, total, completed)
	require.LessOrEqual(t, maxRunning, size)
}

func TestPoolCancelBeforeStart(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	// Saturate the single slot so the next submission cannot start.
	pool := nyx.NewPool(loop, 1)
	block := make(chan struct{})
	pool.Submit(func() (any, error) {
		<-block
		return nil, nil
	}, func(any, error, bool) {})

	var cancelled bool
	req := pool.Submit(func() (any, error) {
		return nil, errors.New("should never run")
	}, func(result any, err error, wasCancelled bool) {
		cancelled = wasCancelled
	})

	ok := req.Cancel()
	require.True(t, ok)
	close(block)

	loop.Run(nyx.RunDefault)
	require.True(t, cancelled)
}
