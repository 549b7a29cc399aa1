// Package stages implements the pipeline stage agents: research, planner,
// validator, synthesizer, and the curious extension point. Each stage is a
// function from run context plus typed input to typed output with token
// accounting; resilience wrapping and sequencing belong to the orchestrator.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/metrics"
	"tuxpilot/pkg/proto"
	"tuxpilot/pkg/usage"
)

// Emitter is the subset of the run event stream stages publish to. Stages
// emit agent:thinking and agent:tool events; lifecycle events (spawn, status,
// result) stay with the orchestrator.
type Emitter interface {
	Emit(event *proto.AgentEvent) bool
}

// Deps carries the run-scoped collaborators every stage shares. The
// orchestrator builds one Deps per stage per run; stages never outlive their
// run.
type Deps struct {
	Client   llm.Client
	Counter  *usage.TokenCounter
	Acc      *usage.Accumulator
	Events   Emitter
	Recorder metrics.Recorder
}

func (d *Deps) emit(event *proto.AgentEvent) {
	if d.Events != nil {
		d.Events.Emit(event)
	}
}

func (d *Deps) observeTool(tool string, failed bool, durationMs int64) {
	if d.Recorder == nil {
		return
	}
	status := "ok"
	if failed {
		status = "error"
	}
	d.Recorder.ObserveTool(tool, status, time.Duration(durationMs)*time.Millisecond)
}

// complete runs one completion and records its token usage against agentID.
// Providers that omit usage fall back to the tokenizer estimate.
func (d *Deps) complete(ctx context.Context, agentID string, agentType proto.AgentType, req llm.CompletionRequest) (llm.CompletionResponse, int, error) {
	if err := llm.ValidateMessages(req.Messages); err != nil {
		return llm.CompletionResponse{}, 0, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "invalid completion request")
	}

	resp, err := d.Client.Complete(ctx, req)
	if err != nil {
		return llm.CompletionResponse{}, 0, err
	}

	tokens := d.record(agentID, agentType, promptText(req.Messages), resp.Content, resp.Usage)
	return resp, tokens, nil
}

// record books one completion's usage and returns the total token count.
func (d *Deps) record(agentID string, agentType proto.AgentType, prompt, completion string, u llm.Usage) int {
	estimated := u.IsZero()
	if estimated {
		u.PromptTokens, u.CompletionTokens = d.Counter.EstimateUsage(prompt, completion)
	}
	if d.Acc != nil {
		d.Acc.Add(usage.Record{
			AgentID:          agentID,
			AgentType:        agentType,
			Model:            d.Client.ModelName(),
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			Estimated:        estimated,
		})
	}
	return u.TotalTokens()
}

func promptText(messages []llm.CompletionMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSON pulls the first JSON object out of a model response, tolerating
// markdown code fences and surrounding prose.
func extractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if fenced := stripFences(trimmed); fenced != "" {
		trimmed = fenced
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return trimmed[start : end+1], nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return ""
	}
	body := strings.TrimPrefix(text, "```")
	// Drop an optional language tag on the fence line.
	if idx := strings.Index(body, "\n"); idx >= 0 {
		body = body[idx+1:]
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

// decodeOutput parses a model response into the stage's output type. Parse
// failures are classified as empty-response errors so the executor retries
// them.
func decodeOutput[T any](content string) (*T, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeEmptyResponse, err, "unparseable stage response")
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeEmptyResponse, err, "malformed stage response")
	}
	return &out, nil
}

// historyMessages converts recent chat history into completion messages,
// keeping at most maxTurns prior turns so prompts stay bounded.
func historyMessages(history []proto.ChatMessage, maxTurns int) []llm.CompletionMessage {
	prior := history
	if len(prior) > 0 {
		// The final entry is the current user message; callers add it
		// themselves with stage-specific framing.
		prior = prior[:len(prior)-1]
	}
	if len(prior) > maxTurns {
		prior = prior[len(prior)-maxTurns:]
	}
	out := make([]llm.CompletionMessage, 0, len(prior))
	for _, m := range prior {
		switch m.Role {
		case proto.RoleUser:
			out = append(out, llm.NewUserMessage(m.Content))
		case proto.RoleAssistant:
			out = append(out, llm.NewAssistantMessage(m.Content))
		case proto.RoleSystem:
			// System turns in history are collapsed into the stage prompt.
		}
	}
	return out
}

// profileSummary renders the system profile for prompts. Missing fields are
// omitted rather than guessed.
func profileSummary(p *proto.SystemProfile) string {
	if p == nil {
		return "System profile: unknown (no discovery data)."
	}
	var parts []string
	if p.Distro != "" {
		d := p.Distro
		if p.DistroVersion != "" {
			d += " " + p.DistroVersion
		}
		parts = append(parts, "distro "+d)
	}
	if p.Kernel != "" {
		parts = append(parts, "kernel "+p.Kernel)
	}
	if p.PackageManager != "" {
		parts = append(parts, "package manager "+p.PackageManager)
	}
	if p.Shell != "" {
		parts = append(parts, "shell "+p.Shell)
	}
	if p.Desktop != "" {
		parts = append(parts, "desktop "+p.Desktop)
	}
	if p.Arch != "" {
		parts = append(parts, "arch "+p.Arch)
	}
	if len(parts) == 0 {
		return "System profile: unknown (no discovery data)."
	}
	return "System profile: " + strings.Join(parts, ", ") + "."
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
