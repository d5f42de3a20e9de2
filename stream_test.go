package nyx_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nyx-io/nyx"
)

// TestTCPEchoServer drives the reactor's listener/accept/read/write path
// against a plain net.Dial client, exercising the stream engine end to
// end the way the teacher's aio_test.go drove gaio's watcher.
func TestTCPEchoServer(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	ln, err := nyx.ListenTCP(loop, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Ref()

	addr, err := ln.LocalAddr()
	require.NoError(t, err)

	var echoed []byte
	done := make(chan struct{})

	ln.Listen(func(s *nyx.Stream, err error) {
		require.NoError(t, err)
		conn, err := s.Accept()
		require.NoError(t, err)
		conn.ReadStart(
			func(int) []byte { return make([]byte, 4096) },
			func(c *nyx.Stream, data []byte, rerr error) {
				if rerr != nil {
					c.Close(nil)
					return
				}
				buf := append([]byte(nil), data...)
				c.Write([][]byte{buf}, func(*nyx.WriteReq, int, error) {})
			},
		)
	})

	closeListener := nyx.NewAsync(loop, func(a *nyx.Async) {
		a.Close(nil)
		ln.Close(nil)
	})

	go func() {
		client, err := net.DialTimeout("tcp", addr.String(), time.Second)
		if err != nil {
			closeListener.Send()
			close(done)
			return
		}
		defer client.Close()
		client.Write([]byte("ping"))
		buf := make([]byte, 4)
		n, _ := client.Read(buf)
		echoed = buf[:n]
		closeListener.Send()
		close(done)
	}()

	loop.Run(nyx.RunDefault)
	<-done
	require.Equal(t, "ping", string(echoed))
}

func TestDialTCPConnectionRefused(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	// Nothing listens on this port; the connect should fail.
	_, _, err = nyx.DialTCP(loop, "tcp", "127.0.0.1:1", func(req *nyx.ConnectReq, connErr error) {
		require.Error(t, connErr)
	})
	require.NoError(t, err)

	loop.Run(nyx.RunDefault)
}

// TestListenerBackPressureRetainsPeerForLaterAccept leaves a connection
// un-accepted inside ConnectionCB, forcing back-pressure, then retrieves
// it later from outside the callback to prove the peer was retained
// rather than dropped (spec.md §4.4: the listener is paused, not made to
// discard the connection, until a later Accept() call).
func TestListenerBackPressureRetainsPeerForLaterAccept(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	ln, err := nyx.ListenTCP(loop, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Ref()
	addr, err := ln.LocalAddr()
	require.NoError(t, err)

	connCBFires := 0
	ln.Listen(func(s *nyx.Stream, err error) {
		require.NoError(t, err)
		connCBFires++
		// Deliberately do not call Accept here.
	})

	closeListener := nyx.NewAsync(loop, func(a *nyx.Async) {
		a.Close(nil)
		ln.Close(nil)
	})

	done := make(chan struct{})
	go func() {
		client, derr := net.DialTimeout("tcp", addr.String(), time.Second)
		require.NoError(t, derr)
		client.Write([]byte("queued"))
		time.Sleep(100 * time.Millisecond)
		closeListener.Send()
		client.Close()
		close(done)
	}()

	var readData []byte
	checkFiredOnce := false
	check := nyx.NewCheck(loop)
	check.Start(func(c *nyx.Check) {
		if checkFiredOnce || connCBFires == 0 {
			return
		}
		checkFiredOnce = true
		conn, aerr := ln.Accept()
		require.NoError(t, aerr)
		conn.ReadStart(
			func(int) []byte { return make([]byte, 64) },
			func(s *nyx.Stream, data []byte, rerr error) {
				if rerr != nil {
					s.Close(nil)
					return
				}
				readData = append(readData, data...)
			},
		)
		c.Stop()
	})

	loop.Run(nyx.RunDefault)
	<-done
	require.Equal(t, 1, connCBFires)
	require.Equal(t, "queued", string(readData))
}

// TestListenerCloseCancelsPendingAcceptedPeer closes a listener while a
// peer is waiting to be accepted and checks ConnectionCB receives an
// ECANCELED error for it (spec.md §8).
func TestListenerCloseCancelsPendingAcceptedPeer(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	ln, err := nyx.ListenTCP(loop, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Ref()
	addr, err := ln.LocalAddr()
	require.NoError(t, err)

	closeTimer := nyx.NewTimer(loop)
	var gotCancel error
	ln.Listen(func(s *nyx.Stream, err error) {
		if err != nil {
			gotCancel = err
			return
		}
		// Never call Accept: force back-pressure, then close the listener
		// out from under the pending peer.
		closeTimer.Start(func(*nyx.Timer) {
			ln.Close(func(*nyx.Handle) {})
		}, 20*time.Millisecond, 0)
	})

	done := make(chan struct{})
	go func() {
		client, derr := net.DialTimeout("tcp", addr.String(), time.Second)
		require.NoError(t, derr)
		defer client.Close()
		time.Sleep(100 * time.Millisecond)
		close(done)
	}()

	loop.Run(nyx.RunDefault)
	<-done
	require.Error(t, gotCancel)
	require.ErrorIs(t, gotCancel, nyx.ECANCELED)
}

func TestWriteOrderingIsFIFO(t *testing.T) {
	loop, err := nyx.NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	ln, err := nyx.ListenTCP(loop, "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln.Ref()
	addr, err := ln.LocalAddr()
	require.NoError(t, err)

	var completions []int
	ln.Listen(func(s *nyx.Stream, err error) {
		require.NoError(t, err)
		conn, err := s.Accept()
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			i := i
			conn.Write([][]byte{[]byte{byte(i)}}, func(*nyx.WriteReq, int, error) {
				completions = append(completions, i)
			})
		}
	})

	done := make(chan struct{})
	closeListener := nyx.NewAsync(loop, func(a *nyx.Async) {
		a.Close(nil)
		ln.Close(nil)
	})
	go func() {
		client, err := net.DialTimeout("tcp", addr.String(), time.Second)
		if err == nil {
			buf := make([]byte, 3)
			client.Read(buf)
			client.Close()
		}
		closeListener.Send()
		close(done)
	}()

	loop.Run(nyx.RunDefault)
	<-done
	require.Equal(t, []int{0, 1, 2}, completions)
}
