// Package retry re-runs operations that failed with a retryable typed error.
package retry

import (
	"context"
	"errors"
	"time"

	goretry "github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

type Policy struct {
	MaxRetries uint64
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NoRetry runs the operation exactly once.
var NoRetry = Policy{}

func (p Policy) backoff() goretry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = 10 * time.Millisecond
	}
	b := goretry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = goretry.WithCappedDuration(p.MaxDelay, b)
	}
	return goretry.WithMaxRetries(p.MaxRetries, b)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the retries
// are exhausted, or ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if pkgerrors.IsRetryable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
}

// Runner bounds an operation with a timeout and retries it under Policy.
type Runner struct {
	Timeout time.Duration
	Policy  Policy
}

// Run executes fn under the runner's deadline. A deadline or cancellation that
// ends the loop surfaces as TRANSIENT_STORE_ERROR unless fn already returned a
// typed error.
func (r Runner) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	err := Do(ctx, r.Policy, fn)
	if err == nil || pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeTransientStore, err, "operation timed out")
	}
	return err
}
