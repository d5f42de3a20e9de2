package nyx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

func TestFSWriteThenReadRoundTrip(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	pool := nyx.NewPool(loop, 2)
	path := filepath.Join(t.TempDir(), "roundtrip.txt")
	want := []byte("reactor contents")

	var readBack []byte
	nyx.FSWriteFile(pool, path, want, 0o644, func(werr error, cancelled bool) {
		require.NoError(t, werr)
		require.False(t, cancelled)
		nyx.FSReadFile(pool, path, func(data []byte, rerr error, rcancelled bool) {
			require.NoError(t, rerr)
			require.False(t, rcancelled)
			readBack = data
		})
	})

	loop.Run(nyx.RunDefault)
	require.Equal(t, want, readBack)
}

func TestFSStatMissingFile(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	pool := nyx.NewPool(loop, 1)
	var statErr error
	nyx.FSStat(pool, filepath.Join(t.TempDir(), "missing"), func(info os.FileInfo, err error, cancelled bool) {
		statErr = err
	})

	loop.Run(nyx.RunDefault)
	require.Error(t, statErr)
}
