// Package retry runs a unit of work under a bounded, jittered retry policy.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"matchstats/internal/apperr"

	"github.com/rs/zerolog/log"
)

// Policy bounds how often and how fast a unit of work is retried
type Policy struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration

	// Retryable reports whether err is transient. Errors it rejects are
	// returned immediately.
	Retryable func(error) bool

	// sleep is swapped out in tests
	sleep func(context.Context, time.Duration) error
}

// Default is used by the dimension resolver and match config store
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: 5,
		MinBackoff:  10 * time.Millisecond,
		MaxBackoff:  100 * time.Millisecond,
		Retryable:   retryable,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// attempt budget is spent. Exhaustion is reported as apperr.KindExhausted
// wrapping a conflict around the last cause.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		delay := p.Backoff()
		log.Warn().
			Err(lastErr).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Transient store conflict, retrying")

		if err := p.wait(ctx, delay); err != nil {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Str("op", op).
		Int("attempts", attempts).
		Msg("Retry budget exhausted")

	return apperr.Exhausted(op, attempts, apperr.Conflict(op, lastErr))
}

// Backoff returns a random delay in [MinBackoff, MaxBackoff]
func (p Policy) Backoff() time.Duration {
	if p.MaxBackoff <= p.MinBackoff {
		return p.MinBackoff
	}
	return p.MinBackoff + rand.N(p.MaxBackoff-p.MinBackoff+1)
}

func (p Policy) wait(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
