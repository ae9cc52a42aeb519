package util

import (
	"context"
	"time"
)

// maxRetryDelay caps the doubling backoff.
const maxRetryDelay = 30 * time.Second

// Retry runs fn until it succeeds, attempts are exhausted, or ctx ends. The
// wait between tries starts at baseDelay and doubles up to maxRetryDelay. An
// error matched by any of the permanent predicates is returned immediately.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error, permanent ...func(error) bool) error {
	if attempts < 1 {
		attempts = 1
	}
	wait := baseDelay
	var last error
	for try := 1; ; try++ {
		if last = fn(); last == nil {
			return nil
		}
		if try == attempts || isPermanent(last, permanent) {
			return last
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		if wait = 2 * wait; wait > maxRetryDelay {
			wait = maxRetryDelay
		}
	}
}

func isPermanent(err error, preds []func(error) bool) bool {
	for _, p := range preds {
		if p(err) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
