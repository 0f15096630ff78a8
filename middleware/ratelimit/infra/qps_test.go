package infra

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestNewQpsStrategy_RejectsInvalidRate(t *testing.T) {
	for _, qps := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := NewQpsStrategy(qps)
		assert.True(t, errors.Is(err, ErrInvalidParams), "qps=%v", qps)
	}
}

func TestQpsStrategy_BurstIsOneSecondOfPermits(t *testing.T) {
	s, err := NewQpsStrategy(2.5)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Burst())

	s, err = NewQpsStrategy(0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Burst())
}

func TestQpsStrategy_AcquireBlocksInsteadOfRejecting(t *testing.T) {
	s, err := NewQpsStrategy(20)
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 22; i++ {
		require.True(t, s.Acquire(context.Background()))
	}
	// 20 de burst + 2 esperando ~50ms cada
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestQpsStrategy_AcquireIsCancellable(t *testing.T) {
	s, err := NewQpsStrategy(0.01)
	require.NoError(t, err)
	require.True(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	assert.False(t, s.Acquire(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestQpsStrategy_AdmitsAtMostRateTimesWindowPlusBurst(t *testing.T) {
	const (
		qps    = 50.0
		window = 400 * time.Millisecond
	)
	s, err := NewQpsStrategy(qps)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), window)
	defer cancel()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s.Acquire(ctx) {
				admitted.Inc()
			}
		}()
	}
	wg.Wait()

	limit := int64(qps*window.Seconds()) + int64(s.Burst()) + 1
	assert.LessOrEqual(t, admitted.Load(), limit)
	assert.Greater(t, admitted.Load(), int64(s.Burst()-1))
}

func TestKeyedQpsStrategy_KeysHaveIndependentBuckets(t *testing.T) {
	s, err := NewKeyedQpsStrategy(0.01, 10, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.True(t, s.Acquire(ctx, "10.0.0.1"))
	assert.True(t, s.Acquire(ctx, "10.0.0.2"))
	assert.False(t, s.Acquire(ctx, "10.0.0.1"), "bucket of 10.0.0.1 should be empty")
	assert.Equal(t, 2, s.Store().Len())
}

func TestKeyedQpsStrategy_EmptyKeySharesUnknownBucket(t *testing.T) {
	s, err := NewKeyedQpsStrategy(0.01, 10, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	assert.True(t, s.Acquire(ctx, ""))
	assert.False(t, s.Acquire(ctx, unknownKey))
}

func TestNewKeyedQpsStrategy_ValidatesParams(t *testing.T) {
	_, err := NewKeyedQpsStrategy(-1, 10, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewKeyedQpsStrategy(1, 0, time.Hour)
	assert.ErrorIs(t, err, ErrInvalidParams)
}
