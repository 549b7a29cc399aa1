package usage

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuxpilot/pkg/config"
	"tuxpilot/pkg/proto"
)

func TestTokenCounterFallback(t *testing.T) {
	var tc *TokenCounter
	// Nil counter falls back to the 4-chars-per-token estimate.
	if got := tc.CountTokens("abcdefgh"); got != 2 {
		t.Errorf("CountTokens fallback = %d, want 2", got)
	}
}

func TestTokenCounterCounts(t *testing.T) {
	tc, err := NewTokenCounter()
	require.NoError(t, err)
	if got := tc.CountTokens("Hello, world"); got < 1 {
		t.Errorf("CountTokens = %d, want >= 1", got)
	}
	prompt, completion := tc.EstimateUsage("list my disks", "lsblk shows block devices")
	assert.Positive(t, prompt)
	assert.Positive(t, completion)
}

func TestCostUSD(t *testing.T) {
	rec := Record{
		Model:            config.ModelClaudeSonnet,
		PromptTokens:     1_000_000,
		CompletionTokens: 1_000_000,
	}
	// Sonnet: $3/M input, $15/M output.
	assert.InDelta(t, 18.0, CostUSD(&rec), 1e-9)

	rec.Model = "some-unknown-model"
	assert.Zero(t, CostUSD(&rec), "unknown models cost zero")
}

func TestAccumulatorSumInvariant(t *testing.T) {
	acc := NewAccumulator("run-1", "chat-1")
	acc.Add(Record{AgentID: "research-a", AgentType: proto.AgentResearch, Model: config.ModelClaudeHaiku, PromptTokens: 100, CompletionTokens: 50})
	acc.Add(Record{AgentID: "planner-b", AgentType: proto.AgentPlanner, Model: config.ModelClaudeSonnet, PromptTokens: 200, CompletionTokens: 80})
	acc.Add(Record{AgentID: "synth-c", AgentType: proto.AgentSynthesizer, Model: config.ModelClaudeSonnet, PromptTokens: 300, CompletionTokens: 400})

	snap := acc.Snapshot()
	require.Len(t, snap.Agents, 3)

	sumTokens := 0
	sumCost := 0.0
	for _, m := range snap.Agents {
		sumTokens += m.TokensUsed
		sumCost += m.CostUSD
	}
	assert.Equal(t, sumTokens, snap.TotalTokens, "total must equal the per-agent sum")
	assert.True(t, math.Abs(sumCost-snap.TotalCostUSD) < 1e-9)
	assert.Equal(t, 1130, snap.TotalTokens)
}

func TestStoreSaveRunIdempotent(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	acc := NewAccumulator("run-9", "chat-9")
	acc.Add(Record{AgentID: "research-a", AgentType: proto.AgentResearch, Model: config.ModelClaudeHaiku, PromptTokens: 10, CompletionTokens: 5})
	run := acc.Snapshot()

	require.NoError(t, store.SaveRun(ctx, run))
	// Saving again must replace, not duplicate.
	require.NoError(t, store.SaveRun(ctx, run))

	loaded, err := store.LoadRun(ctx, "run-9")
	require.NoError(t, err)
	assert.Equal(t, run.TotalTokens, loaded.TotalTokens)
	require.Len(t, loaded.Agents, 1)
	assert.Equal(t, "research-a", loaded.Agents[0].AgentID)

	tokens, cost, err := store.ChatTotals(ctx, "chat-9")
	require.NoError(t, err)
	assert.Equal(t, 15, tokens)
	assert.InDelta(t, run.TotalCostUSD, cost, 1e-9)
}

func TestStoreChatTotalsAcrossRuns(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i, runID := range []string{"run-a", "run-b"} {
		acc := NewAccumulator(runID, "chat-x")
		acc.Add(Record{AgentID: "synth", AgentType: proto.AgentSynthesizer, Model: config.ModelLlama, PromptTokens: 100 * (i + 1), CompletionTokens: 0})
		require.NoError(t, store.SaveRun(ctx, acc.Snapshot()))
	}

	tokens, _, err := store.ChatTotals(ctx, "chat-x")
	require.NoError(t, err)
	assert.Equal(t, 300, tokens)
}
