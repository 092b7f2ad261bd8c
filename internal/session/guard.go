package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/cielo-abierto/internal/apperr"
)

// DefaultTimeout bounds every remote auth call, independently of whatever
// timeout the backend applies on its side.
const DefaultTimeout = 10 * time.Second

// guard runs fn with a deadline of d. When the deadline wins, fn's context
// is cancelled and guard returns ErrTimeout right away. A result that arrives
// after that is discarded; if it was a success, late runs on it so the caller
// can undo side effects.
func guard[T any](ctx context.Context, d time.Duration, log *zap.Logger, op string, fn func(context.Context) (T, error), late func(T)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		cancel()
		return r.v, r.err
	case <-ctx.Done():
		err := ctx.Err()
		cancel()
		go func() {
			r := <-done
			if r.err != nil {
				return
			}
			log.Warn("late completion discarded", zap.String("op", op))
			if late != nil {
				late(r.v)
			}
		}()
		var zero T
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, apperr.Wrap(apperr.KindTimeout, err)
		}
		return zero, err
	}
}
