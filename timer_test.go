package nyx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

func TestTimerFiresOnce(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	fired := 0
	timer := nyx.NewTimer(loop)
	timer.Start(func(*nyx.Timer) { fired++ }, time.Millisecond, 0)

	loop.Run(nyx.RunDefault)
	require.Equal(t, 1, fired)
}

func TestTimerRepeatsInOrder(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	var fireTimes []time.Time
	timer := nyx.NewTimer(loop)
	timer.Start(func(tm *nyx.Timer) {
		fireTimes = append(fireTimes, loop.Now())
		if len(fireTimes) >= 3 {
			tm.Stop()
		}
	}, time.Millisecond, time.Millisecond)

	loop.Run(nyx.RunDefault)
	require.Len(t, fireTimes, 3)
	for i := 1; i < len(fireTimes); i++ {
		require.False(t, fireTimes[i].Before(fireTimes[i-1]))
	}
}

func TestTimerStopPreventsFiring(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	fired := false
	timer := nyx.NewTimer(loop)
	timer.Start(func(*nyx.Timer) { fired = true }, time.Hour, 0)
	timer.Stop()

	// Nothing else keeps the loop alive; RunDefault returns immediately.
	loop.Run(nyx.RunDefault)
	require.False(t, fired)
}
