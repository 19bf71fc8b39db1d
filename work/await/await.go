// Package await runs pipeline stages under an explicit wait budget and
// reports a three-way outcome, so callers can tell "the stage failed" apart from
// "the budget expired". The budget is enforced with a child context, which
// tears the underlying browser work down instead of letting it run on in the
// background holding the session.
package await

import (
	"context"
	"errors"
	"time"
)

// Outcome classifies how a budgeted stage call ended.
type Outcome int

const (
	Completed Outcome = iota // fn returned a value before the budget expired
	Failed                   // fn returned an error of its own
	TimedOut                 // the budget expired first
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case TimedOut:
		return "timed out"
	default:
		return "unknown"
	}
}

// Run executes fn under a child context with the given budget. A zero budget
// means no deadline. The returned error is fn's own error for Failed, or the
// context error for TimedOut.
func Run[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, Outcome, error) {
	runCtx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	v, err := fn(runCtx)
	if err == nil {
		return v, Completed, nil
	}

	var zero T
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return zero, TimedOut, err
	}
	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		// cancelled by our own deadline teardown rather than the caller
		return zero, TimedOut, err
	}
	return zero, Failed, err
}
