package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	err := Retry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		attempts++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, attempts)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Hour, func(context.Context) error {
		return errors.New("down")
	})
	require.ErrorIs(t, err, context.Canceled)
}
