package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"matchstats/internal/apperr"

	"github.com/bmizerany/assert"
)

var errTransient = errors.New("serialization failure")

func isTransient(err error) bool {
	return errors.Is(err, errTransient)
}

func testPolicy(attempts int) (Policy, *[]time.Duration) {
	var slept []time.Duration
	p := Policy{
		MaxAttempts: attempts,
		MinBackoff:  5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
		Retryable:   isTransient,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return p, &slept
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	p, slept := testPolicy(5)

	calls := 0
	err := p.Do(context.Background(), "test", func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errTransient
		}
		return nil
	})

	assert.Equal(t, nil, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, len(*slept))
}

func TestDoExhaustion(t *testing.T) {
	p, slept := testPolicy(4)

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context, int) error {
		calls++
		return errTransient
	})

	assert.Equal(t, 4, calls)
	assert.Equal(t, 3, len(*slept))
	assert.T(t, errors.Is(err, apperr.ErrExhausted))
	assert.T(t, errors.Is(err, apperr.ErrConflict))
	assert.T(t, errors.Is(err, errTransient))
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p, slept := testPolicy(5)
	permanent := apperr.ConfigInUse("test", 1)

	calls := 0
	err := p.Do(context.Background(), "test", func(context.Context, int) error {
		calls++
		return permanent
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, len(*slept))
	assert.Equal(t, permanent, err)
}

func TestDoHonoursCancellation(t *testing.T) {
	p, _ := testPolicy(5)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := p.Do(ctx, "test", func(context.Context, int) error {
		calls++
		cancel()
		return errTransient
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, context.Canceled, err)
}

func TestBackoffWithinBounds(t *testing.T) {
	p := Policy{MinBackoff: 10 * time.Millisecond, MaxBackoff: 30 * time.Millisecond}
	for i := 0; i < 200; i++ {
		d := p.Backoff()
		assert.T(t, d >= p.MinBackoff && d <= p.MaxBackoff, d)
	}

	fixed := Policy{MinBackoff: 10 * time.Millisecond, MaxBackoff: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, fixed.Backoff())
}
