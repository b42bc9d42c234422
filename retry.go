package ygggo_graph

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how WithinTx re-runs attempts that failed with a
// transient classification. The zero value performs a single attempt.
type RetryPolicy struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	MaxElapsed  time.Duration `yaml:"max_elapsed"`
}

// retryWithPolicy runs op, retrying on transient classified failures with an
// exponential backoff schedule.
func retryWithPolicy(ctx context.Context, pol RetryPolicy, op func() error) error {
	if pol.MaxAttempts <= 1 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	if pol.BaseBackoff > 0 {
		b.InitialInterval = pol.BaseBackoff
	}
	if pol.MaxBackoff > 0 {
		b.MaxInterval = pol.MaxBackoff
	}
	b.MaxElapsedTime = pol.MaxElapsed
	sched := backoff.WithContext(backoff.WithMaxRetries(b, uint64(pol.MaxAttempts-1)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, sched)
}

// isTransient reports whether a classified error is worth retrying on a
// fresh attempt. Only timeouts qualify: interrupts are caller intent, and
// everything else would fail the same way again.
func isTransient(err error) bool {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Category == CategoryTimeout
	}
	return false
}
