package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoValue_SucceedsWithoutRetry(t *testing.T) {
	cfg := Bounded(time.Millisecond, 10*time.Millisecond, 3)

	calls := 0
	result, err := DoValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
}

func TestDoValue_SucceedsAfterRetries(t *testing.T) {
	cfg := Bounded(time.Millisecond, 10*time.Millisecond, 5)

	calls := 0
	result, err := DoValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoValue_ExhaustsMaxAttempts(t *testing.T) {
	cfg := Bounded(time.Millisecond, 10*time.Millisecond, 3)

	calls := 0
	_, err := DoValue(context.Background(), cfg, func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("permanent")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var maxAttemptsErr *ErrMaxAttempts
	require.ErrorAs(t, err, &maxAttemptsErr)
	assert.Equal(t, 3, maxAttemptsErr.Attempts)
	assert.Contains(t, maxAttemptsErr.Error(), "permanent")
}

func TestDo_StopsOnContextCancellation(t *testing.T) {
	cfg := Bounded(50*time.Millisecond, time.Second, 10)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Do(ctx, cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoValue_BackoffIsCappedAtMaxBackoff(t *testing.T) {
	cfg := Unbounded(10*time.Millisecond, 15*time.Millisecond)

	calls := 0
	start := time.Now()
	_, _ = DoValue(context.Background(), cfg, func(ctx context.Context) (struct{}, error) {
		calls++
		if calls < 4 {
			return struct{}{}, errors.New("transient")
		}
		return struct{}{}, nil
	})
	elapsed := time.Since(start)

	// Three waits: 10ms, then 15ms and 15ms once capped at MaxBackoff (40ms in all). Uncapped
	// doubling would wait 10ms, 20ms and 40ms (70ms in all), so the run must finish under that.
	assert.Less(t, elapsed, 70*time.Millisecond)
	assert.Equal(t, 4, calls)
}
