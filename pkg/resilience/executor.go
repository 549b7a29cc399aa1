package resilience

import (
	"context"
	"errors"
	"time"

	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
)

// Executor runs stage calls under the shared resilience policy: circuit
// breaker check, per-attempt timeout, and a bounded number of retries with
// a fixed delay.
type Executor struct {
	breakers     *Registry
	maxRetries   int
	retryDelay   time.Duration
	agentTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor from the resilience configuration.
func NewExecutor(cfg config.ResilienceConfig) *Executor {
	return &Executor{
		breakers: NewRegistry(BreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
		}),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		agentTimeout: cfg.AgentTimeout,
		sleep:        sleepCtx,
	}
}

// Breakers exposes the breaker registry for state inspection.
func (e *Executor) Breakers() *Registry {
	return e.breakers
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute runs fn for the given agent type under the resilience policy and
// returns its result or a terminal StageFailure.
//
// The breaker is consulted before each attempt; an open circuit fails the
// stage immediately with no attempts. Each attempt runs under its own
// deadline. Timeouts and retryable errors consume retry budget; errors
// classified non-retryable, and run cancellation, stop the loop at once.
// Attempt outcomes are recorded into the breaker except when the run was
// canceled: cancellation is a caller decision, not a stage failure.
func Execute[T any](ctx context.Context, e *Executor, agentType proto.AgentType, fn func(ctx context.Context) (T, error)) (T, *StageFailure) {
	var zero T
	breaker := e.breakers.For(agentType)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, e.retryDelay); err != nil {
				return zero, &StageFailure{
					AgentType: agentType,
					Reason:    ReasonCanceled,
					Attempts:  attempts,
					Err:       err,
				}
			}
		}

		if !breaker.Allow() {
			logx.Warnf("%s circuit open, rejecting stage call", agentType)
			return zero, &StageFailure{
				AgentType: agentType,
				Reason:    ReasonCircuitOpen,
				Attempts:  attempts,
				Err:       ErrCircuitOpen,
			}
		}

		attempts++
		result, err := runAttempt(ctx, e.agentTimeout, fn)
		if err == nil {
			breaker.Record(true)
			return result, nil
		}
		lastErr = err

		// A canceled run says nothing about the stage's health; it must not
		// move the breaker shared with other runs.
		if errors.Is(err, context.Canceled) || (ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled)) {
			breaker.Release()
			return zero, &StageFailure{
				AgentType: agentType,
				Reason:    ReasonCanceled,
				Attempts:  attempts,
				Err:       err,
			}
		}
		breaker.Record(false)
		if !errors.Is(err, ErrTimeout) && !llmerrors.IsRetryable(err) {
			return zero, &StageFailure{
				AgentType: agentType,
				Reason:    ReasonNonRetryable,
				Attempts:  attempts,
				Err:       err,
			}
		}
		logx.Warnf("%s attempt %d/%d failed: %v", agentType, attempts, e.maxRetries+1, err)
	}

	reason := ReasonRetriesExceeded
	if errors.Is(lastErr, ErrTimeout) {
		reason = ReasonTimeout
	}
	return zero, &StageFailure{
		AgentType: agentType,
		Reason:    reason,
		Attempts:  attempts,
		Err:       lastErr,
	}
}

// runAttempt runs fn under a per-attempt deadline. A deadline expiry is
// reported as ErrTimeout; the attempt goroutine is abandoned once its
// context is canceled.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := fn(attemptCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			var zero T
			return zero, ErrTimeout
		}
		return out.result, out.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			// Run context canceled, not an attempt timeout.
			return zero, ctx.Err()
		}
		return zero, ErrTimeout
	}
}
