package resilience

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tuxpilot/pkg/proto"
)

func newTestBreaker(threshold int, reset time.Duration) (*Breaker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(BreakerConfig{FailureThreshold: threshold, ResetTimeout: reset})
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.True(t, b.Allow())
		b.Record(false)
		assert.Equal(t, Closed, b.GetState(), "should stay closed below threshold")
	}

	assert.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "open breaker must reject")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)

	b.Record(false)
	b.Record(false)
	b.Record(true)
	b.Record(false)
	b.Record(false)
	assert.Equal(t, Closed, b.GetState(), "non-consecutive failures must not open the circuit")
}

func TestBreakerHalfOpenSingleProbe(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.Record(false)
	assert.Equal(t, Open, b.GetState())

	// Cooldown not yet elapsed.
	*now = now.Add(30 * time.Second)
	assert.False(t, b.Allow())

	// Cooldown elapsed: exactly one probe admitted.
	*now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.GetState())
	assert.False(t, b.Allow(), "second caller must wait for probe outcome")

	// Probe succeeds, circuit closes.
	b.Record(true)
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1, time.Minute)

	b.Record(false)
	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow())
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	assert.False(t, b.Allow(), "cooldown restarts after failed probe")

	*now = now.Add(2 * time.Minute)
	assert.True(t, b.Allow(), "new probe admitted after second cooldown")
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.Record(false)
	assert.Equal(t, Open, b.GetState())
	b.Reset()
	assert.Equal(t, Closed, b.GetState())
	assert.True(t, b.Allow())
}

func TestRegistryOneBreakerPerAgentType(t *testing.T) {
	r := NewRegistry(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	research := r.For(proto.AgentResearch)
	planner := r.For(proto.AgentPlanner)
	assert.NotSame(t, research, planner)
	assert.Same(t, research, r.For(proto.AgentResearch))

	// Opening one breaker must not affect the other.
	research.Record(false)
	assert.Equal(t, Open, research.GetState())
	assert.Equal(t, Closed, planner.GetState())
}
