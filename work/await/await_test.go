package await

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunCompleted(t *testing.T) {
	v, outcome, err := Run(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if outcome != Completed {
		t.Fatalf("outcome = %v, want Completed", outcome)
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("value = %d, want 42", v)
	}
}

func TestRunFailed(t *testing.T) {
	boom := errors.New("boom")
	_, outcome, err := Run(context.Background(), time.Second, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if outcome != Failed {
		t.Fatalf("outcome = %v, want Failed", outcome)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
}

func TestRunTimedOut(t *testing.T) {
	start := time.Now()
	_, outcome, _ := Run(context.Background(), 30*time.Millisecond, func(ctx context.Context) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return 1, nil
		}
	})
	if outcome != TimedOut {
		t.Fatalf("outcome = %v, want TimedOut", outcome)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("stage ran past its budget: %s", elapsed)
	}
}

func TestRunZeroBudgetMeansNoDeadline(t *testing.T) {
	v, outcome, err := Run(context.Background(), 0, func(ctx context.Context) (string, error) {
		if _, ok := ctx.Deadline(); ok {
			return "", errors.New("unexpected deadline")
		}
		return "ok", nil
	})
	if outcome != Completed || err != nil || v != "ok" {
		t.Fatalf("got (%q, %v, %v), want (ok, Completed, nil)", v, outcome, err)
	}
}

func TestRunCallerCancellationIsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, outcome, err := Run(ctx, time.Second, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	if outcome != Failed {
		t.Fatalf("outcome = %v, want Failed for caller cancellation", outcome)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestOutcomeString(t *testing.T) {
	if got := TimedOut.String(); got != "timed out" {
		t.Fatalf("TimedOut.String() = %q", got)
	}
}
