package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Do runs fn until it succeeds, the policy is exhausted, ctx ends, or
// retryable rejects the error. The last error is returned unwrapped when no
// retry happened so callers keep its classification.
func Do(ctx context.Context, p Policy, op string, retryable Classifier, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			observability.WarnContext(ctx, "Retrying operation", slog.String("operation", op), logfields.Attempt(attempt), logfields.Error(lastErr))
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable == nil || !retryable(err) || attempt == p.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			break
		}
		timer := time.NewTimer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	if p.MaxRetries > 0 && retryable != nil && retryable(lastErr) {
		return fmt.Errorf("%s failed after %d retries: %w", op, p.MaxRetries, lastErr)
	}
	return lastErr
}
