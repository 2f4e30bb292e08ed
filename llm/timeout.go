package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// runWithTimeout races op against a deadline. The derived context carries
// the deadline so the upstream call observes real cancellation, but the
// caller gets the timeout failure as soon as the deadline passes rather
// than waiting for the operation to notice. The result channel is
// buffered so an abandoned operation cannot leak its goroutine.
func runWithTimeout(ctx context.Context, d time.Duration, name string, op func(ctx context.Context) error) error {
	if d <= 0 {
		return op(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(tctx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && tctx.Err() != nil {
			return timeoutError(name, d)
		}
		return err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return timeoutError(name, d)
		}
		return tctx.Err()
	}
}

func timeoutError(name string, d time.Duration) *Error {
	return NewError(ErrorCodeTimeout, fmt.Sprintf("%s timed out after %s", name, d), context.DeadlineExceeded)
}
