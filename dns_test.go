package nyx_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

func TestGetAddrInfoResolvesLocalhost(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	pool := nyx.NewPool(loop, 1)
	var resolved bool
	nyx.GetAddrInfo(pool, "localhost", func(addrs []net.IPAddr, err error, cancelled bool) {
		require.NoError(t, err)
		require.False(t, cancelled)
		require.NotEmpty(t, addrs)
		resolved = true
	})

	loop.Run(nyx.RunDefault)
	require.True(t, resolved)
}
