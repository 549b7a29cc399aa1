package resilience

import (
	"errors"
	"fmt"

	"tuxpilot/pkg/proto"
)

// Sentinel errors produced by stage execution.
var (
	// ErrCircuitOpen means the breaker rejected the request without an attempt.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTimeout means a single attempt exceeded the per-attempt deadline.
	ErrTimeout = errors.New("stage attempt timed out")
)

// FailureReason categorizes why a stage ultimately failed.
type FailureReason string

// Failure reason values carried on StageFailure.
const (
	ReasonCircuitOpen     FailureReason = "circuit_open"
	ReasonTimeout         FailureReason = "timeout"
	ReasonRetriesExceeded FailureReason = "retries_exceeded"
	ReasonNonRetryable    FailureReason = "non_retryable"
	ReasonCanceled        FailureReason = "canceled"
)

// StageFailure is the terminal error for one stage execution after the
// resilience policy is exhausted. The orchestrator inspects Reason to pick a
// degradation path.
type StageFailure struct {
	Err       error
	AgentType proto.AgentType
	Reason    FailureReason
	Attempts  int
}

// Error implements the error interface.
func (f *StageFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s stage failed (%s after %d attempts): %v", f.AgentType, f.Reason, f.Attempts, f.Err)
	}
	return fmt.Sprintf("%s stage failed (%s after %d attempts)", f.AgentType, f.Reason, f.Attempts)
}

// Unwrap returns the underlying error.
func (f *StageFailure) Unwrap() error {
	return f.Err
}
