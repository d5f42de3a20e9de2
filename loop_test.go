package nyx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

func TestRunNoWaitDoesNotBlock(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	timer := nyx.NewTimer(loop)
	timer.Start(func(*nyx.Timer) {}, time.Hour, 0)
	defer timer.Stop()

	done := make(chan bool, 1)
	go func() { done <- loop.Run(nyx.RunNoWait) }()

	select {
	case more := <-done:
		require.True(t, more)
	case <-time.After(time.Second):
		t.Fatal("RunNoWait blocked")
	}
}

func TestIdlePrepareCheckOrdering(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	var order []string
	idle := nyx.NewIdle(loop)
	prepare := nyx.NewPrepare(loop)
	check := nyx.NewCheck(loop)

	// check fires last within an iteration (phase 9, after idle's phase 4
	// and prepare's phase 5), so stopping everything there still lets this
	// iteration's idle/prepare entries land in order first.
	check.Start(func(c *nyx.Check) {
		order = append(order, "check")
		idle.Stop()
		prepare.Stop()
		c.Stop()
	})
	idle.Start(func(*nyx.Idle) { order = append(order, "idle") })
	prepare.Start(func(*nyx.Prepare) { order = append(order, "prepare") })

	loop.Run(nyx.RunDefault)
	require.Equal(t, []string{"idle", "prepare", "check"}, order)
}

// TestIdleAloneDoesNotBlockPoller keeps only an Idle handle active (no
// timers, no active Check, nothing closing): phase 6 must still compute a
// zero timeout so the idle callback keeps firing every iteration instead
// of the backend poller blocking forever on its first wait (spec.md §4.1
// phase 4, phase 6).
func TestIdleAloneDoesNotBlockPoller(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	var fires int
	idle := nyx.NewIdle(loop)
	idle.Start(func(i *nyx.Idle) {
		fires++
		if fires >= 3 {
			i.Stop()
		}
	})

	done := make(chan bool, 1)
	go func() { done <- loop.Run(nyx.RunDefault) }()

	select {
	case <-done:
		require.Equal(t, 3, fires)
	case <-time.After(time.Second):
		t.Fatal("an idle-only loop blocked in the backend poller")
	}
}

func TestHandleCloseIsDeferredOneIteration(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	closed := false
	timer := nyx.NewTimer(loop)
	timer.Start(func(tm *nyx.Timer) {
		tm.Close(func(*nyx.Handle) { closed = true })
		require.False(t, closed, "close_cb must not fire in the requesting iteration")
	}, time.Millisecond, 0)

	loop.Run(nyx.RunDefault)
	require.True(t, closed)
}
