package stages

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
	"tuxpilot/pkg/tools"
)

// Strategy selects how wide a research pass casts its net.
type Strategy string

const (
	StrategyQuick    Strategy = "quick"
	StrategyDeep     Strategy = "deep"
	StrategyAdaptive Strategy = "adaptive"
)

// MaxResults returns the citation cap for this strategy.
func (s Strategy) MaxResults(caps config.StrategyConfig) int {
	switch s {
	case StrategyDeep:
		return caps.DeepMaxResults
	case StrategyAdaptive:
		return caps.AdaptiveMaxResults
	default:
		return caps.QuickMaxResults
	}
}

// SelectStrategy picks a research strategy from the user's tier and a cheap
// query heuristic. Trial and free users always get the quick pass; pro users
// get deep research for long or diagnostic questions and adaptive otherwise.
func SelectStrategy(tier proto.Tier, query string) Strategy {
	if tier != proto.TierPro {
		return StrategyQuick
	}
	lower := strings.ToLower(query)
	if len(query) > 240 ||
		strings.Contains(lower, "why") ||
		strings.Contains(lower, "debug") ||
		strings.Contains(lower, "troubleshoot") {
		return StrategyDeep
	}
	return StrategyAdaptive
}

const researchSystemPrompt = `You are a Linux system administration researcher.
You are given a user question, recent conversation, and raw results from
lookup tools. Write a factual research summary grounded in those results.
Respond with a single JSON object:
{"summary": "...", "needsDeeper": false, "subTopic": ""}
Set needsDeeper to true and name a narrower subTopic only when the results
clearly point at a more specific question that must be answered first.`

// ResearchInput is one research pass. Depth and ParentAgentID are set for
// sub-research spawned off a needsDeeper result.
type ResearchInput struct {
	AgentID       string
	Query         string
	Strategy      Strategy
	Profile       *proto.SystemProfile
	History       []proto.ChatMessage
	ParentAgentID string
	Depth         int
}

// Research gathers sources via the tool registry and condenses them into a
// cited summary.
type Research struct {
	Deps
	Tools   *tools.Registry
	Weights *config.SourceWeightsConfig
	Caps    config.StrategyConfig
}

// Type returns the stage's agent type.
func (r *Research) Type() proto.AgentType { return proto.AgentResearch }

// Run executes one research pass. Tool failures reduce the data, never the
// stage; only the condensing LLM call can fail it.
func (r *Research) Run(ctx context.Context, in ResearchInput) (*proto.ResearchOutput, error) {
	maxResults := in.Strategy.MaxResults(r.Caps)

	citations, toolNotes := r.gather(ctx, in, maxResults)

	r.emit(proto.NewThinkingEvent(in.AgentID,
		fmt.Sprintf("Condensing %d sources into a summary", len(citations))))

	messages := historyMessages(in.History, 6)
	messages = append([]llm.CompletionMessage{llm.NewSystemMessage(researchSystemPrompt)}, messages...)
	messages = append(messages, llm.NewUserMessage(r.buildPrompt(in, toolNotes)))

	resp, tokens, err := r.complete(ctx, in.AgentID, proto.AgentResearch, llm.NewCompletionRequest(messages))
	if err != nil {
		return nil, err
	}

	out, decodeErr := decodeOutput[proto.ResearchOutput](resp.Content)
	if decodeErr != nil {
		// A summary that arrived as prose is still a summary.
		logx.Debugf("research response was not JSON, using raw text: %v", decodeErr)
		out = &proto.ResearchOutput{Summary: strings.TrimSpace(resp.Content)}
	}
	out.Citations = citations
	out.TokensUsed = tokens
	if out.NeedsDeeper && strings.TrimSpace(out.SubTopic) == "" {
		out.NeedsDeeper = false
	}
	return out, nil
}

// gather runs the lookup tools and returns weighted, capped citations plus
// the raw content for the condensing prompt.
func (r *Research) gather(ctx context.Context, in ResearchInput, maxResults int) ([]proto.Citation, []string) {
	var citations []proto.Citation
	var notes []string

	for _, name := range r.toolPlan(in) {
		tool, exists := r.Tools.Get(name)
		if !exists {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		r.emit(proto.NewToolEvent(proto.ToolPayload{
			AgentID: in.AgentID,
			Tool:    name,
			Input:   in.Query,
			Status:  proto.ToolRunning,
		}))

		result, inv := tools.Run(ctx, tool, in.Query)
		r.observeTool(name, inv.Err != nil, inv.DurationMs)

		r.emit(proto.NewToolEvent(proto.ToolPayload{
			AgentID:    in.AgentID,
			Tool:       name,
			Input:      in.Query,
			Status:     proto.ToolDone,
			Output:     truncate(result.Content, 500),
			DurationMs: inv.DurationMs,
		}))

		if result.Content != "" {
			notes = append(notes, fmt.Sprintf("[%s]\n%s", name, truncate(result.Content, 2000)))
		}
		citations = append(citations, result.Citations...)
	}

	for i := range citations {
		citations[i].SourceWeight = r.weightFor(citations[i].URL)
	}
	tools.SortCitations(citations)
	if len(citations) > maxResults {
		citations = citations[:maxResults]
	}
	// Confidence follows the source weight, decaying with rank so later
	// results never outrank an earlier one from an equally trusted source.
	for i := range citations {
		conf := citations[i].SourceWeight - 0.05*float64(i)
		if conf < 0.1 {
			conf = 0.1
		}
		citations[i].Confidence = conf
	}
	return citations, notes
}

// toolPlan picks which lookup tools this pass runs, in order.
func (r *Research) toolPlan(in ResearchInput) []string {
	plan := []string{tools.ToolWebSearch, tools.ToolWiki}
	lower := strings.ToLower(in.Query)
	if strings.Contains(lower, "install") || strings.Contains(lower, "package") ||
		strings.Contains(lower, "upgrade") || strings.Contains(lower, "remove") {
		plan = append(plan, tools.ToolPackageLookup)
	}
	if strings.HasPrefix(lower, "man ") || strings.Contains(lower, "manpage") ||
		strings.Contains(lower, "man page") {
		plan = append(plan, tools.ToolManpage)
	}
	return plan
}

func (r *Research) weightFor(rawURL string) float64 {
	if r.Weights == nil {
		return 0
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return r.Weights.Default
	}
	return r.Weights.Weight(u.Host)
}

func (r *Research) buildPrompt(in ResearchInput, toolNotes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", in.Query)
	b.WriteString(profileSummary(in.Profile))
	b.WriteString("\n\n")
	if in.Depth > 0 {
		fmt.Fprintf(&b, "This is a focused follow-up pass (depth %d). Answer only the narrow question above.\n\n", in.Depth)
	}
	if len(toolNotes) == 0 {
		b.WriteString("No tool results were available. Summarize what is known from the conversation alone and say so.\n")
	} else {
		b.WriteString("Tool results:\n\n")
		b.WriteString(strings.Join(toolNotes, "\n\n"))
		b.WriteString("\n")
	}
	return b.String()
}
