package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/proto"
)

func newTestExecutor(maxRetries int) *Executor {
	e := NewExecutor(config.ResilienceConfig{
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
		MaxRetries:       maxRetries,
		RetryDelay:       time.Second,
		AgentTimeout:     5 * time.Second,
	})
	// No real sleeping in tests.
	e.sleep = func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}
	return e
}

func TestExecuteSuccess(t *testing.T) {
	e := newTestExecutor(2)
	got, failure := Execute(context.Background(), e, proto.AgentResearch, func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if got != "ok" {
		t.Errorf("got %q", got)
	}
}

func TestExecuteRetriesTransientThenSucceeds(t *testing.T) {
	e := newTestExecutor(2)
	calls := 0
	got, failure := Execute(context.Background(), e, proto.AgentResearch, func(_ context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, llmerrors.NewError(llmerrors.ErrorTypeTransient, "flaky")
		}
		return 42, nil
	})
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if got != 42 || calls != 3 {
		t.Errorf("got=%d calls=%d, want 42 after 3 calls", got, calls)
	}
}

func TestExecuteRetriesExhausted(t *testing.T) {
	e := newTestExecutor(2)
	calls := 0
	_, failure := Execute(context.Background(), e, proto.AgentPlanner, func(_ context.Context) (int, error) {
		calls++
		return 0, llmerrors.NewError(llmerrors.ErrorTypeTransient, "still flaky")
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Reason != ReasonRetriesExceeded {
		t.Errorf("Reason = %s, want %s", failure.Reason, ReasonRetriesExceeded)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
	if failure.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", failure.Attempts)
	}
}

func TestExecuteNonRetryableStopsImmediately(t *testing.T) {
	e := newTestExecutor(2)
	calls := 0
	_, failure := Execute(context.Background(), e, proto.AgentValidator, func(_ context.Context) (int, error) {
		calls++
		return 0, llmerrors.NewError(llmerrors.ErrorTypeAuth, "bad key")
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Reason != ReasonNonRetryable {
		t.Errorf("Reason = %s, want %s", failure.Reason, ReasonNonRetryable)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on auth errors)", calls)
	}
}

func TestExecuteCircuitOpenSkipsAttempt(t *testing.T) {
	e := newTestExecutor(2)
	b := e.breakers.For(proto.AgentResearch)
	for i := 0; i < 5; i++ {
		b.Record(false)
	}

	calls := 0
	_, failure := Execute(context.Background(), e, proto.AgentResearch, func(_ context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Reason != ReasonCircuitOpen {
		t.Errorf("Reason = %s, want %s", failure.Reason, ReasonCircuitOpen)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 (open circuit must not invoke fn)", calls)
	}
	if !errors.Is(failure, ErrCircuitOpen) {
		t.Error("failure should unwrap to ErrCircuitOpen")
	}
}

func TestExecuteFailuresFeedBreaker(t *testing.T) {
	e := newTestExecutor(4)
	calls := 0
	_, failure := Execute(context.Background(), e, proto.AgentSynthesizer, func(_ context.Context) (int, error) {
		calls++
		return 0, llmerrors.NewError(llmerrors.ErrorTypeTransient, "down")
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	// 5 failed attempts reach the threshold, so the breaker is now open.
	if state := e.breakers.For(proto.AgentSynthesizer).GetState(); state != Open {
		t.Errorf("breaker state = %s, want OPEN", state)
	}

	_, failure = Execute(context.Background(), e, proto.AgentSynthesizer, func(_ context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if failure == nil || failure.Reason != ReasonCircuitOpen {
		t.Errorf("follow-up call should be rejected by the open circuit, got %v", failure)
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
}

func TestExecuteRetryDelayCount(t *testing.T) {
	e := newTestExecutor(2)
	sleeps := 0
	e.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps++
		if d != time.Second {
			t.Errorf("sleep delay = %v, want 1s", d)
		}
		return ctx.Err()
	}

	_, failure := Execute(context.Background(), e, proto.AgentPlanner, func(_ context.Context) (int, error) {
		return 0, llmerrors.NewError(llmerrors.ErrorTypeTransient, "still flaky")
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if sleeps != 2 {
		t.Errorf("retry delays observed = %d, want exactly 2", sleeps)
	}
}

func TestExecuteAttemptTimeout(t *testing.T) {
	e := newTestExecutor(1)
	e.agentTimeout = 10 * time.Millisecond

	calls := 0
	_, failure := Execute(context.Background(), e, proto.AgentResearch, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Reason != ReasonTimeout {
		t.Errorf("Reason = %s, want %s", failure.Reason, ReasonTimeout)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (timeouts consume retry budget)", calls)
	}
}

func TestExecuteRunCancellation(t *testing.T) {
	e := newTestExecutor(3)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, failure := Execute(ctx, e, proto.AgentResearch, func(_ context.Context) (int, error) {
		calls++
		cancel()
		return 0, context.Canceled
	})
	if failure == nil {
		t.Fatal("expected failure")
	}
	if failure.Reason != ReasonCanceled {
		t.Errorf("Reason = %s, want %s", failure.Reason, ReasonCanceled)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (cancellation must not retry)", calls)
	}
}

func TestExecuteCancellationDoesNotFeedBreaker(t *testing.T) {
	e := newTestExecutor(2)

	// Five superseded turns in a row, each canceling its run mid-attempt.
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, failure := Execute(ctx, e, proto.AgentResearch, func(_ context.Context) (int, error) {
			cancel()
			return 0, context.Canceled
		})
		if failure == nil || failure.Reason != ReasonCanceled {
			t.Fatalf("call %d: expected canceled failure, got %v", i, failure)
		}
	}

	if state := e.breakers.For(proto.AgentResearch).GetState(); state != Closed {
		t.Fatalf("breaker state = %s after canceled runs, want CLOSED", state)
	}

	got, failure := Execute(context.Background(), e, proto.AgentResearch, func(_ context.Context) (int, error) {
		return 7, nil
	})
	if failure != nil {
		t.Fatalf("healthy call rejected after canceled runs: %v", failure)
	}
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}

func TestExecuteCanceledProbeFreesHalfOpenSlot(t *testing.T) {
	e := newTestExecutor(0)
	b := e.breakers.For(proto.AgentResearch)
	for i := 0; i < 5; i++ {
		b.Record(false)
	}
	clock := time.Now()
	b.now = func() time.Time { return clock.Add(2 * time.Minute) }

	// The probe call is canceled; the slot must not stay claimed.
	ctx, cancel := context.WithCancel(context.Background())
	_, failure := Execute(ctx, e, proto.AgentResearch, func(_ context.Context) (int, error) {
		cancel()
		return 0, context.Canceled
	})
	if failure == nil || failure.Reason != ReasonCanceled {
		t.Fatalf("expected canceled failure, got %v", failure)
	}

	got, failure := Execute(context.Background(), e, proto.AgentResearch, func(_ context.Context) (int, error) {
		return 1, nil
	})
	if failure != nil {
		t.Fatalf("next probe was rejected: %v", failure)
	}
	if got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if state := b.GetState(); state != Closed {
		t.Errorf("breaker state = %s after successful probe, want CLOSED", state)
	}
}
