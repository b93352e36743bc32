package utils

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryStrategy defines exponential backoff retry logic
type RetryStrategy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// NewRetryStrategy creates a new RetryStrategy with defaults
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  200 * time.Millisecond,
		Jitter:      true,
	}
}

// CalculateBackoff returns duration until next retry attempt.
// Doubles from BaseBackoff per attempt, capped at MaxBackoff.
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	multiplier := math.Pow(2, float64(attemptNumber-1))
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// +/-10% so concurrent writers that collided do not collide again in lockstep
		jitterRange := backoff / 10
		if jitterRange > 0 {
			jitter := time.Duration(rand.Int63n(int64(jitterRange*2))) - jitterRange
			backoff += jitter
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// Wait sleeps for the backoff of attemptNumber or until ctx is done
func (s *RetryStrategy) Wait(ctx context.Context, attemptNumber int) error {
	timer := time.NewTimer(s.CalculateBackoff(attemptNumber))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// The last error is returned together with the number of attempts made.
func (s *RetryStrategy) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) (int, error) {
	var err error
	attempts := s.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return attempt, nil
		}
		if retryable == nil || !retryable(err) || attempt == attempts {
			return attempt, err
		}
		if werr := s.Wait(ctx, attempt); werr != nil {
			return attempt, werr
		}
	}

	return attempts, err
}
