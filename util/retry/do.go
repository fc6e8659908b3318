package retry

import (
	"context"
	"time"
)

// Do calls fn, retrying on error according to opts until RetryCount
// attempts have been made (or indefinitely if InfiniteRetry is set), or
// until ctx is cancelled. The first wait is BackoffDurationType. When
// ExponentialBackoff is false the wait grows linearly (after attempt n it is
// BackoffDurationType * BackoffMultiplier * n); when true it is multiplied
// by BackoffFactor each attempt. Either way it is capped at MaxBackoff.
func Do(ctx context.Context, fn func() error, opts ...Options) error {
	o := NewSetOptions(opts...)

	backoff := o.BackoffDurationType
	var lastErr error

	for attempt := 0; o.InfiniteRetry || attempt < o.RetryCount; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if o.ExponentialBackoff {
			backoff = time.Duration(float64(backoff) * o.BackoffFactor)
		} else {
			backoff = o.BackoffDurationType * time.Duration(o.BackoffMultiplier*(attempt+1))
		}
		if backoff > o.MaxBackoff {
			backoff = o.MaxBackoff
		}
	}

	return lastErr
}
