package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestCompletionSettleOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletion()
	select {
	case <-c.Done():
		t.Fatal("completion settled before Settle")
	default:
	}

	c.Settle(nil)
	c.Settle(errors.New("second settle must be ignored"))

	<-c.Done()
	require.NoError(t, c.Err())
}

func TestCompletionWaitAbandonment(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewCompletion()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Wait(ctx)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	// the operation still completes after the wait was abandoned, and a
	// later observer sees its real result
	boom := errors.New("boom")
	c.Settle(boom)
	require.Equal(t, boom, c.Wait(context.Background()))
	require.Equal(t, boom, c.Err())
}

func TestSettledCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	c := SettledCompletion(boom)
	require.Equal(t, boom, c.Wait(context.Background()))

	ok := SettledCompletion(nil)
	require.NoError(t, ok.Err())
}
