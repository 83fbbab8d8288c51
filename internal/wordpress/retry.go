package wordpress

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// DefaultAttempts is the retry budget used for dependent post steps.
const DefaultAttempts = 3

// Backoff is an exponential backoff schedule with 50-100 % jitter.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff starts at 500ms and caps at 5s.
var DefaultBackoff = Backoff{Base: 500 * time.Millisecond, Max: 5 * time.Second}

// Retry runs fn with DefaultBackoff. See [Backoff.Retry].
func Retry(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	return DefaultBackoff.Retry(ctx, maxAttempts, fn)
}

// Retry executes fn up to maxAttempts times. It returns nil on the first
// success, immediately on an error marked with [Permanent], and otherwise a
// wrapped error holding the last failure once the budget is spent.
func (b Backoff) Retry(ctx context.Context, maxAttempts int, fn func(context.Context) error) error {
	var lastErr error
	for attempt := range maxAttempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}

		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(b.delay(attempt)):
			}
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", maxAttempts, lastErr)
}

// delay computes the wait after the given attempt index.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.Base << attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	if d < 2 {
		return d
	}
	// Uniform in [d/2, d).
	jitter := time.Duration(rand.Int63n(int64(d) / 2)) //nolint:gosec // jitter does not need crypto/rand
	return d/2 + jitter
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
