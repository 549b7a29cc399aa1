package orchestrator

import (
	"context"
	"sync"

	"tuxpilot/pkg/logx"
)

// activeRun tracks one in-flight run for a chat.
type activeRun struct {
	runID  string
	cancel context.CancelFunc
}

// runRegistry enforces the one-active-run-per-chat invariant. Beginning a
// run cancels any run still active for the same chat before registering the
// new one.
type runRegistry struct {
	mu     sync.Mutex
	active map[string]activeRun
}

func newRunRegistry() *runRegistry {
	return &runRegistry{active: make(map[string]activeRun)}
}

// begin registers a new run for chatID, canceling the previous one if still
// running. The returned context is canceled when the run is superseded,
// finished, or the parent context ends.
func (r *runRegistry) begin(parent context.Context, chatID, runID string) (context.Context, context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.active[chatID]; exists {
		logx.Infof("superseding run %s on chat %s with %s", prev.runID, chatID, runID)
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	r.active[chatID] = activeRun{runID: runID, cancel: cancel}
	return ctx, cancel
}

// finish deregisters a run. A run that has already been superseded leaves
// the newer registration untouched.
func (r *runRegistry) finish(chatID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, exists := r.active[chatID]; exists && current.runID == runID {
		current.cancel()
		delete(r.active, chatID)
	}
}

// activeRunID reports the run currently registered for a chat, if any.
func (r *runRegistry) activeRunID(chatID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, exists := r.active[chatID]
	return run.runID, exists
}
