package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leon4s4/httpsource/internal/classify"
	"github.com/leon4s4/httpsource/internal/config"
)

func TestDo_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			return Attempt{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 3, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			if calls < 3 {
				return Attempt{Category: classify.Transient, Status: 503}, errors.New("boom")
			}
			return Attempt{}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_NonRetriableFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 5, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			return Attempt{Category: classify.DataFormat}, errors.New("bad json")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "bad json")
}

func TestDo_AuthenticationNeverRetried(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 5, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			return Attempt{Category: classify.Authentication, Status: 401}, errors.New("unauthorized")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StatusOutsideRetrySetFailsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 5, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			return Attempt{Category: classify.ClientError, Status: 418}, errors.New("teapot")
		})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{MaxRetries: 2, Backoff: config.BackoffConstant, BaseDelay: time.Millisecond}, nil,
		func() (Attempt, error) {
			calls++
			return Attempt{Category: classify.Transient, Status: 503}, errors.New("still down")
		})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // 1 initial + 2 retries
}

// ExponentialWithJitter fairness: delay on attempt k satisfies
// 0.5*base*2^(k-1) <= delay <= 1.5*base*2^(k-1) (invariant 9, spec.md §8).
func TestNewBackOff_ExponentialJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	bo := newBackOff(Policy{Backoff: config.BackoffExponentialWithJitter, BaseDelay: base})

	for attempt := 1; attempt <= 4; attempt++ {
		d, err := bo.NextBackOff()
		require.NoError(t, err)
		expected := float64(base) * float64(int64(1)<<(attempt-1))
		assert.GreaterOrEqual(t, float64(d), expected*0.5)
		assert.LessOrEqual(t, float64(d), expected*1.5)
	}
}

func TestShouldRetryStatus(t *testing.T) {
	assert.True(t, ShouldRetryStatus(503, nil))
	assert.True(t, ShouldRetryStatus(429, nil))
	assert.False(t, ShouldRetryStatus(418, nil))

	ranges, err := config.ParseStatusRanges("400-")
	require.NoError(t, err)
	assert.True(t, ShouldRetryStatus(418, ranges))
}
