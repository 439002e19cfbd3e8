// Package retry provides a bounded retry combinator for optimistic writes.
//
// The ledger's create path races concurrent writers on the single-ACTIVE-row
// uniqueness arbiter instead of locking. The loser of a race re-reads and
// retries; this package bounds those retries and classifies exhaustion.
package retry

import (
	"context"
	"errors"
)

// DefaultAttempts bounds optimistic write retries when no explicit bound is
// configured.
const DefaultAttempts = 3

// ErrExhausted reports that every attempt hit the conflict signal. Callers
// translate it into a retryable error; the operation may be safely re-issued.
var ErrExhausted = errors.New("retry attempts exhausted")

// Do runs fn up to attempts times, retrying only when retryable reports the
// returned error as the conflict signal. Non-conflict errors and context
// cancellation propagate immediately. When all attempts conflict, the last
// error is wrapped with ErrExhausted so errors.Is(err, ErrExhausted) holds.
func Do(ctx context.Context, attempts int, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) {
			return last
		}
	}
	return errors.Join(ErrExhausted, last)
}
