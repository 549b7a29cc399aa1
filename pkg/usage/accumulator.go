package usage

import (
	"sync"
	"time"

	"tuxpilot/pkg/config"
	"tuxpilot/pkg/proto"
)

// Record captures token consumption for one agent within a run.
type Record struct {
	AgentID          string
	AgentType        proto.AgentType
	Model            string
	PromptTokens     int
	CompletionTokens int
	Estimated        bool // True when the provider reported no usage and counts were estimated
}

// RunUsage is the aggregate view of a finished (or in-flight) run.
type RunUsage struct {
	RunID        string
	ChatID       string
	StartedAt    time.Time
	TotalTokens  int
	TotalCostUSD float64
	Agents       []proto.AgentMetric
}

// Accumulator gathers per-agent usage for one run. The run total is always
// the sum of the per-agent records; it is computed, never stored.
type Accumulator struct {
	mu        sync.Mutex
	runID     string
	chatID    string
	startedAt time.Time
	records   []Record
}

// NewAccumulator creates an accumulator for a run.
func NewAccumulator(runID, chatID string) *Accumulator {
	return &Accumulator{
		runID:     runID,
		chatID:    chatID,
		startedAt: time.Now(),
	}
}

// Add records one agent's token consumption.
func (a *Accumulator) Add(rec Record) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
}

// CostUSD computes the dollar cost of one record from the model registry.
// Unknown models cost zero but their tokens still count.
func CostUSD(rec *Record) float64 {
	info := config.LookupModel(rec.Model)
	return float64(rec.PromptTokens)/1e6*info.InputCPM +
		float64(rec.CompletionTokens)/1e6*info.OutputCPM
}

// Records returns a copy of the per-agent records added so far.
func (a *Accumulator) Records() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.records))
	copy(out, a.records)
	return out
}

// Snapshot returns the aggregate usage so far. The per-agent breakdown sums
// exactly to the totals.
func (a *Accumulator) Snapshot() RunUsage {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := RunUsage{
		RunID:     a.runID,
		ChatID:    a.chatID,
		StartedAt: a.startedAt,
		Agents:    make([]proto.AgentMetric, 0, len(a.records)),
	}
	for i := range a.records {
		rec := &a.records[i]
		tokens := rec.PromptTokens + rec.CompletionTokens
		cost := CostUSD(rec)
		out.Agents = append(out.Agents, proto.AgentMetric{
			AgentID:    rec.AgentID,
			AgentType:  rec.AgentType,
			Model:      rec.Model,
			TokensUsed: tokens,
			CostUSD:    cost,
		})
		out.TotalTokens += tokens
		out.TotalCostUSD += cost
	}
	return out
}
