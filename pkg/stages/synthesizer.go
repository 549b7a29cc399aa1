package stages

import (
	"context"
	"fmt"
	"strings"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/proto"
)

const synthesizerSystemPrompt = `You are tuxpilot, a Linux system
administration assistant. Write the final answer to the user's question using
the research summary, the plan, and the validated commands provided. Be
direct and practical. Present commands in the order given and explain what
each does; mention risks where flagged. If a caveat about reduced analysis is
provided, state it plainly near the top of your answer. Answer in prose and
fenced code blocks; do not emit JSON.`

// SynthesizerInput is everything the final prose generation sees. Caveats
// carry degradation notices that must surface in the response text.
type SynthesizerInput struct {
	AgentID  string
	Query    string
	History  []proto.ChatMessage
	Research *proto.ResearchOutput
	Plan     *proto.PlannerOutput
	Valid    *proto.ValidatorOutput
	Caveats  []string
}

// Synthesizer streams the final answer as message:chunk events and returns
// the assembled output with response metadata.
type Synthesizer struct {
	Deps
}

// Type returns the stage's agent type.
func (s *Synthesizer) Type() proto.AgentType { return proto.AgentSynthesizer }

// Run streams the answer. Every content chunk is emitted before Run returns;
// the orchestrator follows up with the terminal message:done.
func (s *Synthesizer) Run(ctx context.Context, in SynthesizerInput) (*proto.SynthesizerOutput, error) {
	messages := historyMessages(in.History, 6)
	messages = append([]llm.CompletionMessage{llm.NewSystemMessage(synthesizerSystemPrompt)}, messages...)
	messages = append(messages, llm.NewUserMessage(s.buildPrompt(in)))

	req := llm.NewCompletionRequest(messages)
	req.Temperature = llm.TemperatureSynthesis

	chunks, err := s.Client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	var reported llm.Usage
	for chunk := range chunks {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			s.emit(proto.NewChunkEvent(chunk.Content))
		}
		if chunk.Done {
			reported = chunk.Usage
		}
	}
	if ctx.Err() != nil {
		return nil, llmerrors.Classify(ctx.Err())
	}

	response := strings.TrimSpace(text.String())
	if response == "" {
		return nil, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "synthesizer produced no text")
	}

	tokens := s.record(in.AgentID, proto.AgentSynthesizer, promptText(req.Messages), response, reported)

	commandCount := 0
	if in.Valid != nil {
		commandCount = len(in.Valid.ValidatedCommands)
	}
	return &proto.SynthesizerOutput{
		Response: response,
		Metadata: proto.ResponseMetadata{
			ResponseType: classifyResponse(in, commandCount),
			Complexity:   classifyComplexity(response, commandCount),
			CommandCount: commandCount,
		},
		TokensUsed: tokens,
	}, nil
}

// classifyResponse derives the response type from the pipeline shape rather
// than a second model call: commands mean action, a repair-flavored query
// with commands means repair, everything else is informational.
func classifyResponse(in SynthesizerInput, commandCount int) proto.ResponseType {
	if commandCount == 0 {
		return proto.ResponseInfo
	}
	lower := strings.ToLower(in.Query)
	if strings.Contains(lower, "fix") || strings.Contains(lower, "broken") ||
		strings.Contains(lower, "not working") || strings.Contains(lower, "error") {
		return proto.ResponseRepair
	}
	return proto.ResponseAction
}

func classifyComplexity(response string, commandCount int) proto.Complexity {
	switch {
	case commandCount >= 4 || len(response) > 2400:
		return proto.ComplexityComplex
	case commandCount >= 2 || len(response) > 800:
		return proto.ComplexityModerate
	default:
		return proto.ComplexitySimple
	}
}

func (s *Synthesizer) buildPrompt(in SynthesizerInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", in.Query)

	for _, caveat := range in.Caveats {
		fmt.Fprintf(&b, "Caveat (must appear in your answer): %s\n", caveat)
	}
	if len(in.Caveats) > 0 {
		b.WriteString("\n")
	}

	if in.Research != nil && in.Research.Summary != "" {
		fmt.Fprintf(&b, "Research summary:\n%s\n\n", truncate(in.Research.Summary, 4000))
	}
	if in.Plan != nil && len(in.Plan.Steps) > 0 {
		b.WriteString("Plan:\n")
		for i, step := range in.Plan.Steps {
			fmt.Fprintf(&b, "%d. %s", i+1, step.Title)
			if step.Description != "" {
				fmt.Fprintf(&b, " - %s", step.Description)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	if in.Valid != nil {
		if len(in.Valid.ValidatedCommands) > 0 {
			b.WriteString("Validated commands (present these):\n")
			for _, cmd := range in.Valid.ValidatedCommands {
				fmt.Fprintf(&b, "- %s (risk: %s)\n", cmd.Command, cmd.Risk)
			}
			b.WriteString("\n")
		}
		if len(in.Valid.Blocked) > 0 {
			b.WriteString("Blocked commands (mention only as warnings, never as steps to run):\n")
			for _, cmd := range in.Valid.Blocked {
				fmt.Fprintf(&b, "- %s: %s\n", cmd.Command, cmd.RiskExplanation)
			}
			b.WriteString("\n")
		}
		for _, w := range in.Valid.Warnings {
			fmt.Fprintf(&b, "Warning: %s\n", w)
		}
	}
	b.WriteString("\nWrite the final answer now.")
	return b.String()
}
