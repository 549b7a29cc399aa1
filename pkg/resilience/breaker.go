// Package resilience provides circuit breaking, retries, and per-attempt
// timeouts for pipeline stage execution.
package resilience

import (
	"sync"
	"time"

	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states for managing stage failure patterns.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Probing if the stage recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines thresholds for circuit breaker behavior.
type BreakerConfig struct {
	FailureThreshold int           // Consecutive failures before opening
	ResetTimeout     time.Duration // Open -> half-open cooldown
}

// Breaker is a three-state circuit breaker guarding one agent type. In
// half-open state exactly one probe request is admitted; its outcome decides
// whether the circuit closes or reopens.
type Breaker struct {
	mu           sync.Mutex
	config       BreakerConfig
	state        State
	failureCount int
	probing      bool
	openedAt     time.Time
	now          func() time.Time
}

// NewBreaker creates a circuit breaker with the given thresholds.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{
		config: config,
		state:  Closed,
		now:    time.Now,
	}
}

// Allow reports whether a request may proceed. When the cooldown on an open
// circuit has elapsed, the call transitions to half-open and claims the
// single probe slot.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true

	case Open:
		if b.now().Sub(b.openedAt) >= b.config.ResetTimeout {
			b.state = HalfOpen
			b.probing = true
			return true
		}
		return false

	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true

	default:
		return false
	}
}

// Record records the outcome of an admitted request.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// Release returns an admitted request's probe slot without recording an
// outcome, for requests abandoned mid-flight whose result says nothing
// about stage health.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == HalfOpen {
		b.probing = false
	}
}

// GetState returns the current circuit breaker state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset manually resets the circuit breaker to closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
	b.probing = false
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case Closed:
		b.failureCount = 0
	case HalfOpen:
		// Probe succeeded, close the circuit.
		b.state = Closed
		b.failureCount = 0
		b.probing = false
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case Closed:
		b.failureCount++
		if b.failureCount >= b.config.FailureThreshold {
			b.state = Open
			b.openedAt = b.now()
		}
	case HalfOpen:
		// Probe failed, reopen and restart the cooldown.
		b.state = Open
		b.openedAt = b.now()
		b.probing = false
	}
}

// Registry holds one breaker per agent type. Failure history is shared
// across runs so a stage that is down stays guarded between chat turns.
type Registry struct {
	mu       sync.Mutex
	config   BreakerConfig
	breakers map[proto.AgentType]*Breaker
}

// NewRegistry creates a breaker registry with shared thresholds.
func NewRegistry(config BreakerConfig) *Registry {
	return &Registry{
		config:   config,
		breakers: make(map[proto.AgentType]*Breaker),
	}
}

// For returns the breaker guarding the given agent type, creating it on
// first use.
func (r *Registry) For(agentType proto.AgentType) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, exists := r.breakers[agentType]
	if !exists {
		b = NewBreaker(r.config)
		r.breakers[agentType] = b
		logx.Debugf("created circuit breaker for %s (threshold=%d, reset=%v)",
			agentType, r.config.FailureThreshold, r.config.ResetTimeout)
	}
	return b
}
