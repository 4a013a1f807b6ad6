package agent

import (
	"context"
	"math/rand"
	"time"
)

// InfiniteAttempts makes Retry try forever. It is a distinct sentinel: zero
// attempts normalizes to the default budget instead.
const InfiniteAttempts = -1

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

// Policy configures the generic retry combinator.
type Policy struct {
	MaxAttempts int // InfiniteAttempts for unbounded
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay randomized, 0..1
}

func (p Policy) normalize() Policy {
	out := p
	if out.MaxAttempts == 0 {
		out.MaxAttempts = defaultMaxAttempts
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = defaultBaseDelay
	}
	if out.MaxDelay <= 0 {
		out.MaxDelay = defaultMaxDelay
	}
	if out.MaxDelay < out.BaseDelay {
		out.MaxDelay = out.BaseDelay
	}
	if out.Jitter < 0 {
		out.Jitter = 0
	}
	if out.Jitter > 1 {
		out.Jitter = 1
	}
	return out
}

func (p Policy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if p.Jitter > 0 {
		spread := float64(d) * p.Jitter
		d = time.Duration(float64(d) - spread/2 + rand.Float64()*spread)
	}
	return d
}

// Retry runs fn until it succeeds, the attempt budget runs out, retryable
// rejects the error, or the context is cancelled. A nil retryable retries
// every error. The last error is returned on exhaustion.
func Retry[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	p := policy.normalize()

	var lastErr error
	for attempt := 1; p.MaxAttempts == InfiniteAttempts || attempt <= p.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return zero, err
		}
		if p.MaxAttempts != InfiniteAttempts && attempt == p.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return zero, lastErr
}
