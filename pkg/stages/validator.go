package stages

import (
	"context"
	"fmt"
	"strings"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/proto"
)

const validatorSystemPrompt = `You are a Linux command safety reviewer. You
are given proposed shell commands for a user's system. For each command,
decide whether it is safe to surface as executable. You must not invent new
commands; only judge the ones given. Respond with a single JSON object:
{
  "verdicts": [{
    "command": "...",
    "approve": true,
    "risk": "low|medium|high",
    "riskExplanation": "...",
    "reason": "..."
  }],
  "warnings": ["..."],
  "suggestions": ["..."]
}
Reject commands that are destructive, irreversible without backups, or
mismatched to the user's distribution.`

// PlannerInput's commands arrive here. ValidatorInput carries everything the
// review needs.
type ValidatorInput struct {
	AgentID  string
	Query    string
	Commands []proto.CommandProposal
	Profile  *proto.SystemProfile
}

// Validator filters and annotates planner commands. It never introduces
// commands: output commands are matched back against the input set and
// anything unrecognized is dropped.
type Validator struct {
	Deps
}

// Type returns the stage's agent type.
func (v *Validator) Type() proto.AgentType { return proto.AgentValidator }

type commandVerdict struct {
	Command         string `json:"command"`
	Approve         bool   `json:"approve"`
	Risk            string `json:"risk"`
	RiskExplanation string `json:"riskExplanation"`
	Reason          string `json:"reason"`
}

type rawValidation struct {
	Verdicts    []commandVerdict `json:"verdicts"`
	Warnings    []string         `json:"warnings"`
	Suggestions []string         `json:"suggestions"`
}

// Run reviews the planner's commands. With no commands to review the stage
// answers immediately without an LLM call.
func (v *Validator) Run(ctx context.Context, in ValidatorInput) (*proto.ValidatorOutput, error) {
	if len(in.Commands) == 0 {
		return &proto.ValidatorOutput{}, nil
	}

	v.emit(proto.NewThinkingEvent(in.AgentID,
		fmt.Sprintf("Reviewing %d proposed commands for safety", len(in.Commands))))

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(validatorSystemPrompt),
		llm.NewUserMessage(v.buildPrompt(in)),
	}
	resp, tokens, err := v.complete(ctx, in.AgentID, proto.AgentValidator, llm.NewCompletionRequest(messages))
	if err != nil {
		return nil, err
	}

	raw, err := decodeOutput[rawValidation](resp.Content)
	if err != nil {
		return nil, err
	}

	out := v.apply(in.Commands, raw)
	out.TokensUsed = tokens
	return out, nil
}

// apply reconciles model verdicts with the input command set and enforces
// the hard policy: root-privilege high-risk commands are always blocked,
// whatever the model said.
func (v *Validator) apply(commands []proto.CommandProposal, raw *rawValidation) *proto.ValidatorOutput {
	verdicts := make(map[string]*commandVerdict, len(raw.Verdicts))
	for i := range raw.Verdicts {
		verdicts[normalizeCommandText(raw.Verdicts[i].Command)] = &raw.Verdicts[i]
	}

	out := &proto.ValidatorOutput{
		Warnings:    raw.Warnings,
		Suggestions: raw.Suggestions,
	}

	for _, cmd := range commands {
		approved := true
		reason := ""
		if verdict, exists := verdicts[normalizeCommandText(cmd.Command)]; exists {
			approved = verdict.Approve
			reason = verdict.Reason
			if risk, err := proto.ParseRiskLevel(verdict.Risk); err == nil && risk.AtLeast(cmd.Risk) {
				// The reviewer may raise risk, never lower it.
				cmd.Risk = risk
			}
			if verdict.RiskExplanation != "" {
				cmd.RiskExplanation = verdict.RiskExplanation
			}
		}

		if cmd.PrivilegeLevel == proto.PrivilegeRoot && cmd.Risk == proto.RiskHigh {
			approved = false
			if reason == "" {
				reason = "high-risk root command"
			}
		}

		if approved {
			out.ValidatedCommands = append(out.ValidatedCommands, cmd)
		} else {
			out.Blocked = append(out.Blocked, cmd)
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("blocked %q: %s", cmd.Command, reason))
		}
	}
	return out
}

func normalizeCommandText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (v *Validator) buildPrompt(in ValidatorInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User goal: %s\n\n", in.Query)
	b.WriteString(profileSummary(in.Profile))
	b.WriteString("\n\nCommands to review:\n")
	for i, cmd := range in.Commands {
		fmt.Fprintf(&b, "%d. %s (privilege: %s, claimed risk: %s)\n",
			i+1, cmd.Command, cmd.PrivilegeLevel, cmd.Risk)
	}
	b.WriteString("\nReturn a verdict for every command.")
	return b.String()
}
