package nyx_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestFSEventObservesWrite watches a fresh temp file for changes and
// verifies a write made from an unrelated goroutine is delivered through
// the loop thread, per SPEC_FULL.md's fs-event handle section (§8
// scenario 7).
func TestFSEventObservesWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("initial"), 0o644))

	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	pool := nyx.NewPool(loop, 2)
	ev := nyx.NewFSEvent(loop, pool)

	var gotName string
	var gotKind nyx.FSEventKind
	done := false

	ev.FSEventStart(path, func(h *nyx.FSEvent, name string, kind nyx.FSEventKind, err error) {
		require.NoError(t, err)
		if done {
			return
		}
		gotName = name
		gotKind = kind
		done = true
		h.FSEventStop()
	})

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, []byte("changed"), 0o644)
	}()

	deadline := nyx.NewTimer(loop)
	deadline.Start(func(*nyx.Timer) {
		if !done {
			ev.FSEventStop()
		}
	}, 2*time.Second, 0)

	loop.Run(nyx.RunDefault)
	require.True(t, done, "expected an fs-event callback for the write")
	require.Equal(t, path, gotName)
	require.Contains(t, []nyx.FSEventKind{nyx.FSEventChange, nyx.FSEventBoth}, gotKind)
}
