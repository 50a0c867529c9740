package retry

import (
	"context"
	"time"
)

// Policy tracks retry attempts for a single unit of work and sleeps with
// exponential backoff between them. It has no jitter and does not
// distinguish between error kinds: every failure of the wrapped operation is
// equally retryable. A Policy is single-use; create a fresh one per range.
type Policy struct {
	maxRetries   int
	initialDelay time.Duration
	attempts     int
}

// New returns a Policy allowing up to maxRetries retries (maxRetries+1 total
// attempts) with the given initial backoff delay.
func New(maxRetries int, initialDelay time.Duration) *Policy {
	return &Policy{maxRetries: maxRetries, initialDelay: initialDelay}
}

// ShouldRetry reports whether another attempt should be made. It is true at
// entry, before the first attempt has even happened: the intended reading
// is "attempt, then possibly retry", not "retry if attempts remain".
func (p *Policy) ShouldRetry() bool {
	return p.attempts <= p.maxRetries
}

// Attempts returns the number of attempts recorded so far via HandleError.
func (p *Policy) Attempts() int {
	return p.attempts
}

// HandleError records a failed attempt. If the retry budget is not
// exhausted, it sleeps for initialDelay*2^attemptNumber (the first retry
// waits 2x initialDelay, each successive retry doubles that) and returns
// true to continue. Once the budget is exhausted it returns false along
// with the error the caller should re-raise. The sleep is interrupted by
// ctx cancellation, which is reported as the give-up error instead.
func (p *Policy) HandleError(ctx context.Context, lastErr error) (bool, error) {
	p.attempts++
	if p.attempts > p.maxRetries {
		return false, lastErr
	}

	delay := p.initialDelay * time.Duration(int64(1)<<uint(p.attempts))

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.C:
		return true, nil
	}
}
