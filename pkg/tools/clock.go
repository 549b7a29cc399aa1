package tools

import (
	"context"
	"fmt"
	"time"
)

// ToolClock is the name of the clock tool.
const ToolClock = "clock"

// ClockTool reports the current time. Cron schedules, log timestamps, and
// timer units all need a trustworthy "now" the model does not have.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

// Name returns the tool name.
func (t *ClockTool) Name() string {
	return ToolClock
}

// Exec reports the current time in UTC and the local zone.
func (t *ClockTool) Exec(_ context.Context, _ string) (*Result, error) {
	now := t.now()
	return &Result{
		Content: fmt.Sprintf("current time: %s (UTC: %s, unix: %d)",
			now.Format(time.RFC1123Z),
			now.UTC().Format(time.RFC3339),
			now.Unix()),
	}, nil
}
