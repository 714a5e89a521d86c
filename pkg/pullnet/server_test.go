package pullnet

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lithdew/bytesutil"
	"github.com/sammck-go/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func testLogger(t *testing.T) logger.Logger {
	lg, err := logger.New(
		logger.WithWriter(os.Stderr),
		logger.WithLogLevel(logger.LogLevelError),
		logger.WithPrefix(t.Name()),
	)
	require.NoError(t, err)
	return lg
}

func TestListenBindsAndCloses(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NotNil(t, s.Addr())
	require.NoError(t, s.Close())
}

func TestRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{UseFraming: true, TCPNoDelay: true})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		chunk, err := ex.Read(ctx)
		if err == nil {
			_ = ex.Write(ctx, chunk)
		}
		_ = ex.Close()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{UseFraming: true, TCPNoDelay: true})
	require.NoError(t, err)

	payload := []byte("hello, pull side")
	require.NoError(t, ex.Write(ctx, payload))

	echo, err := ex.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, echo)
	require.EqualValues(t, len(payload), ex.NumBytesRead())
	require.EqualValues(t, len(payload), ex.NumBytesWritten())

	_ = ex.Close()
	<-done
	s.Close()
}

func TestConcurrentIsolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()
	const n = 8

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{UseFraming: true, AcceptQueueLimit: 4})
	require.NoError(t, err)

	var handlers sync.WaitGroup
	handlers.Add(n)
	go func() {
		for i := 0; i < n; i++ {
			_, ex, err := s.Accept(ctx)
			if err != nil {
				return
			}
			go func(ex *Exchange) {
				defer handlers.Done()
				chunk, err := ex.Read(ctx)
				if err == nil {
					_ = ex.Write(ctx, chunk)
				}
				_ = ex.Close()
			}(ex)
		}
	}()

	type result struct {
		id   int
		echo byte
	}
	results := make(chan result, n)

	var clients sync.WaitGroup
	clients.Add(n)
	for i := 0; i < n; i++ {
		go func(id int) {
			defer clients.Done()
			ex, err := Dial(lg, s.Addr().String(), ClientConfig{UseFraming: true})
			require.NoError(t, err)
			defer ex.Close()
			require.NoError(t, ex.Write(ctx, []byte{byte(id)}))
			echo, err := ex.Read(ctx)
			require.NoError(t, err)
			require.Len(t, echo, 1)
			results <- result{id: id, echo: echo[0]}
		}(i)
	}
	clients.Wait()
	handlers.Wait()
	close(results)

	seen := make(map[int]byte)
	for r := range results {
		seen[r.id] = r.echo
	}
	require.Len(t, seen, n)
	for id, echo := range seen {
		require.EqualValues(t, id, echo, "client %d got someone else's byte back", id)
	}

	s.Close()
}

func TestBindError(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)

	s1, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	s2, err := Listen(lg, s1.Addr().String(), ServerConfig{})
	require.Error(t, err)
	require.Nil(t, s2)
	var be *BindError
	require.True(t, errors.As(err, &be))

	s1.Close()
}

func TestServerCloseReleasesAccept(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := s.Accept(context.Background())
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	s.Close()

	select {
	case err := <-errCh:
		require.Equal(t, ErrServerClosed, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Accept was left hanging by server shutdown")
	}
}

func TestAcceptQueueThrottlesAdmission(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()
	const limit = 2
	const dialers = 5

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{AcceptQueueLimit: limit})
	require.NoError(t, err)

	exs := make([]*Exchange, 0, dialers)
	for i := 0; i < dialers; i++ {
		ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
		require.NoError(t, err)
		exs = append(exs, ex)
	}

	// nobody is consuming: the queue holds `limit` admitted connections and
	// the acceptor blocks holding one more; the rest stay unadmitted even
	// though the OS already accepted them
	time.Sleep(200 * time.Millisecond)
	require.LessOrEqual(t, s.Stats.Total(), int32(limit+1))

	for i := 0; i < dialers; i++ {
		_, ex, err := s.Accept(ctx)
		require.NoError(t, err)
		_ = ex.Close()
	}
	for _, ex := range exs {
		_ = ex.Close()
	}
	s.Close()
}

func TestNoLossUnderRapidServerClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()
	payload := []byte("parting gift")

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{UseFraming: true})
	require.NoError(t, err)

	go func() {
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		// write then close immediately: close must not race ahead of
		// delivery of the already-buffered payload
		_ = ex.Write(ctx, payload)
		_ = ex.Close()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{UseFraming: true})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	got, err := ex.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	_, err = ex.Read(ctx)
	require.Equal(t, io.EOF, err)

	_ = ex.Close()
	s.Close()
}

func TestNoLossUnderRapidClientClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()
	payload := []byte("fire and forget")

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{UseFraming: true})
	require.NoError(t, err)

	got := make(chan []byte, 1)
	go func() {
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
		chunk, err := ex.Read(ctx)
		if err == nil {
			got <- chunk
		} else {
			close(got)
		}
		_ = ex.Close()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{UseFraming: true})
	require.NoError(t, err)
	require.NoError(t, ex.Write(ctx, payload))
	_ = ex.Close()

	select {
	case chunk := <-got:
		require.Equal(t, payload, chunk)
	case <-time.After(5 * time.Second):
		t.Fatal("server never observed the payload")
	}
	s.Close()
}

func TestBackpressureDeliversEveryPacket(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()
	const packets = 1000

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{UseFraming: true})
	require.NoError(t, err)

	go func() {
		_, ex, err := s.Accept(ctx)
		if err != nil {
			return
		}
		// produce as fast as the engine allows; the throttled client's
		// paused reads must slow this loop down through TCP itself
		for i := uint32(0); i < packets; i++ {
			if err := ex.Write(ctx, bytesutil.AppendUint32BE(nil, i)); err != nil {
				break
			}
		}
		_ = ex.Close()
	}()

	ex, err := Dial(lg, s.Addr().String(), ClientConfig{UseFraming: true, InboundQueueLimit: 10})
	require.NoError(t, err)

	var next uint32
	for {
		chunk, err := ex.Read(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		require.Len(t, chunk, 4)
		require.Equal(t, next, bytesutil.Uint32BE(chunk), "packet lost, duplicated, or reordered")
		next++
		if next%20 == 0 {
			// consume far slower than the producer writes
			time.Sleep(2 * time.Millisecond)
		}
	}
	require.EqualValues(t, packets, next)

	_ = ex.Close()
	s.Close()
}

func TestServerCloseTearsDownAdmittedConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	ctx := context.Background()

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	clientEx, err := Dial(lg, s.Addr().String(), ClientConfig{})
	require.NoError(t, err)

	_, serverEx, err := s.Accept(ctx)
	require.NoError(t, err)

	readErr := make(chan error, 1)
	go func() {
		_, err := serverEx.Read(ctx)
		readErr <- err
	}()

	s.Close()

	// the suspended read is released with end-of-stream, not left hanging
	select {
	case err := <-readErr:
		require.Equal(t, io.EOF, err)
	case <-time.After(5 * time.Second):
		t.Fatal("read on admitted connection was left hanging by server shutdown")
	}
	require.EqualValues(t, 0, s.Stats.Open())

	_ = clientEx.Close()
}

func TestServerCloseDiscardsUnconsumedConnections(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	const dialers = 3

	s, err := Listen(lg, "127.0.0.1:0", ServerConfig{})
	require.NoError(t, err)

	exs := make([]*Exchange, 0, dialers)
	for i := 0; i < dialers; i++ {
		ex, err := Dial(lg, s.Addr().String(), ClientConfig{})
		require.NoError(t, err)
		exs = append(exs, ex)
	}

	// give the acceptors time to admit the connections nobody consumes
	time.Sleep(100 * time.Millisecond)
	s.Close()

	// admitted-but-unconsumed connections are not handed out after close
	_, ex, err := s.Accept(context.Background())
	require.Equal(t, ErrServerClosed, err)
	require.Nil(t, ex)
	require.EqualValues(t, 0, s.Stats.Open())

	for _, ex := range exs {
		_ = ex.Close()
	}
}

func TestConfigRejectsNegativeLimits(t *testing.T) {
	defer goleak.VerifyNone(t)

	lg := testLogger(t)
	_, err := Listen(lg, "127.0.0.1:0", ServerConfig{AcceptQueueLimit: -1})
	require.Error(t, err)
	_, err = Listen(lg, "127.0.0.1:0", ServerConfig{InboundQueueLimit: -1})
	require.Error(t, err)
}
