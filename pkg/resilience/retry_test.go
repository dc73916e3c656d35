package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryGivesUp(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Retry(context.Background(), "op", fastConfig(2), func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	bad := errors.New("malformed")
	calls := 0
	err := Retry(context.Background(), "op", fastConfig(5), func() error {
		calls++
		return Permanent(bad)
	})
	assert.Equal(t, bad, err)
	assert.Equal(t, 1, calls)
}

func TestRetryAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "op", fastConfig(5), func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10, JitterFraction: 0.1}
	assert.LessOrEqual(t, computeDelay(4, cfg), 2*time.Second)
}
