package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int32

	err := Run(context.Background(), make([]int, 20), 3, func(context.Context, int) error {
		n := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	var calls atomic.Int32

	err := Run(context.Background(), []int{1, 2, 3, 4}, 2, func(_ context.Context, n int) error {
		calls.Add(1)
		if n == 2 {
			return boom
		}
		return nil
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(4), calls.Load())
}

func TestRunEmptyBatch(t *testing.T) {
	require.NoError(t, Run(context.Background(), nil, 3, func(context.Context, int) error {
		t.Fatal("fn called for empty batch")
		return nil
	}))
}
