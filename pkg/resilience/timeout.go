// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jllopis/onyx/pkg/errors"
)

// WithTimeout runs fn with a deadline of d. fn receives the bounded context
// and is expected to honor it; if it does not, WithTimeout still returns at the
// deadline with a recoverable CodeTimeout error. A zero d disables the bound.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	var zero T
	select {
	case <-ctx.Done():
		return zero, timeoutError(ctx.Err(), d)
	case res := <-done:
		if res.err != nil && stderrors.Is(res.err, context.DeadlineExceeded) {
			return zero, timeoutError(res.err, d)
		}
		return res.value, res.err
	}
}

func timeoutError(cause error, d time.Duration) error {
	return errors.New(errors.CodeTimeout, "operation exceeded timeout", cause).
		WithContext("timeout", d.String()).
		WithRecoverable(true)
}

func asOnyx(err error, target **errors.OnyxError) bool {
	return stderrors.As(err, target)
}
