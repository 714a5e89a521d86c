package pullnet

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestConnectFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)

	// grab a port with nothing listening on it
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ex, err := Dial(lg, addr, ClientConfig{})
	require.Error(t, err)
	require.Nil(t, ex)
	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
}

func TestConnectTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	start := time.Now()
	// non-routable test address; the attempt must fail within the context
	// bound, not hang
	ex, err := DialContext(ctx, lg, "10.255.255.1:65000", ClientConfig{})
	if err == nil {
		_ = ex.Close()
		t.Skip("test address is reachable from this network; cannot exercise a timed-out connect")
	}
	require.Error(t, err)
	require.Nil(t, ex)
	var ce *ConnectError
	require.True(t, errors.As(err, &ce))
	require.Less(t, int64(time.Since(start)), int64(10*time.Second))
}

func TestCloseReleasesSuspendedRead(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	go func() {
		// accept and hold the connection open without writing
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		ex.WaitShutdown()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := ex.Read(ctx)
		readErr <- err
	}()

	time.Sleep(50 * time.Millisecond)
	_ = ex.Close()

	select {
	case err := <-readErr:
		require.Equal(t, io.EOF, err)
	case <-time.After(5 * time.Second):
		t.Fatal("suspended read was left hanging by local close")
	}
	s.Close()
}

func TestReadHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	bg := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	go func() {
		_, ex, err := s.Accept(bg)
		if err != nil {
			return
		}
		ex.WaitShutdown()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(bg, 50*time.Millisecond)
	defer cancel()
	_, err = ex.Read(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	_ = ex.Close()
	s.Close()
}

func TestWriteAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	go func() {
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		ex.WaitShutdown()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
	require.NoError(t, err)
	_ = ex.Close()

	err = ex.Write(ctx, []byte("too late"))
	require.Equal(t, ErrExchangeClosed, err)

	s.Close()
}

func TestRemoteCloseEndsReadSequence(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	go func() {
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		_ = ex.Close()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
	require.NoError(t, err)

	_, err = ex.Read(ctx)
	require.Equal(t, io.EOF, err)

	_ = ex.Close()
	s.Close()
}
