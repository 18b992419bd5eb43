// Package retry runs an operation under a bounded exponential backoff
// policy, retrying only errors the policy classifies as transient.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Defaults for session establishment.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultMultiplier  = 2.0
	DefaultJitter      = 0.1
)

// Policy describes how many times an operation is attempted and how long
// to wait between attempts. A Policy is a value and safe to share.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Jitter is the randomization factor applied to each delay, in [0, 1).
	Jitter float64

	// Retryable reports whether err is worth another attempt. A nil
	// Retryable retries every error.
	Retryable func(err error) bool
}

// Default returns the policy used when nothing is configured.
func Default() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Multiplier:  DefaultMultiplier,
		Jitter:      DefaultJitter,
	}
}

// Notify is called before each wait with the error of the failed attempt,
// its 1-based number and the delay before the next one.
type Notify func(err error, attempt int, wait time.Duration)

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It returns the number of attempts made and the
// last error. Cancelling ctx stops waiting between attempts; the returned
// error then wraps both ctx.Err() and the last attempt's error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify Notify) (int, error) {
	maxAttempts := max(p.MaxAttempts, 1)

	attempts := 0
	var last error
	operation := func() error {
		attempts++
		err := op(ctx, attempts)
		if err == nil {
			return nil
		}
		last = err
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	var onWait backoff.Notify
	if notify != nil {
		onWait = func(err error, wait time.Duration) { notify(err, attempts, wait) }
	}

	err := backoff.RetryNotify(operation, p.backOff(ctx, maxAttempts), onWait)
	if err == nil {
		return attempts, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && last != nil && err == ctxErr {
		return attempts, fmt.Errorf("%w after %d attempt(s): %w", ctxErr, attempts, last)
	}
	return attempts, err
}

func (p Policy) backOff(ctx context.Context, maxAttempts int) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	if eb.MaxInterval < eb.InitialInterval {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.Multiplier = p.Multiplier
	if eb.Multiplier < 1 {
		eb.Multiplier = DefaultMultiplier
	}
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(maxAttempts-1)), ctx)
}

// Delays returns the nominal delay before each retry, without jitter. It
// is used for logging the configured schedule.
func (p Policy) Delays() []time.Duration {
	n := max(p.MaxAttempts, 1) - 1
	mult := p.Multiplier
	if mult < 1 {
		mult = DefaultMultiplier
	}
	out := make([]time.Duration, 0, n)
	d := p.BaseDelay
	for range n {
		if p.MaxDelay > 0 && d > p.MaxDelay {
			d = p.MaxDelay
		}
		out = append(out, d)
		d = time.Duration(float64(d) * mult)
	}
	return out
}
