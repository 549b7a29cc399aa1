package stages

import (
	"context"
	"fmt"
	"strings"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/proto"
)

const plannerSystemPrompt = `You are a Linux system administration planner.
Given a user goal, a research summary, and the user's system profile, produce
an ordered plan and the exact shell commands that realize it. Target the
user's distribution and package manager; never propose commands for a
different package manager. Respond with a single JSON object:
{
  "steps": [{"title": "...", "description": "..."}],
  "commands": [{
    "command": "...",
    "privilegeLevel": "read-only|user|root",
    "risk": "low|medium|high",
    "riskExplanation": "...",
    "dryRunHint": "...",
    "expectedOutput": "..."
  }],
  "prerequisites": ["..."],
  "troubleshooting": ["..."]
}
Prefer read-only diagnostics before mutating commands. Mark anything that
modifies the system as user or root privilege with an honest risk level.`

// PlannerInput feeds the planning stage.
type PlannerInput struct {
	AgentID  string
	Query    string
	Research *proto.ResearchOutput
	Profile  *proto.SystemProfile
	History  []proto.ChatMessage
}

// Planner turns research into ordered steps and concrete command proposals.
type Planner struct {
	Deps
}

// Type returns the stage's agent type.
func (p *Planner) Type() proto.AgentType { return proto.AgentPlanner }

// rawCommand mirrors the command JSON with string enums so malformed model
// values can be normalized instead of failing the unmarshal.
type rawCommand struct {
	Command         string `json:"command"`
	PrivilegeLevel  string `json:"privilegeLevel"`
	Risk            string `json:"risk"`
	RiskExplanation string `json:"riskExplanation"`
	DryRunHint      string `json:"dryRunHint"`
	ExpectedOutput  string `json:"expectedOutput"`
}

type rawPlan struct {
	Steps           []proto.PlanStep `json:"steps"`
	Commands        []rawCommand     `json:"commands"`
	Prerequisites   []string         `json:"prerequisites"`
	Troubleshooting []string         `json:"troubleshooting"`
}

// Run produces the plan for one run.
func (p *Planner) Run(ctx context.Context, in PlannerInput) (*proto.PlannerOutput, error) {
	p.emit(proto.NewThinkingEvent(in.AgentID, "Drafting a step-by-step plan from the research"))

	messages := historyMessages(in.History, 4)
	messages = append([]llm.CompletionMessage{llm.NewSystemMessage(plannerSystemPrompt)}, messages...)
	messages = append(messages, llm.NewUserMessage(p.buildPrompt(in)))

	resp, tokens, err := p.complete(ctx, in.AgentID, proto.AgentPlanner, llm.NewCompletionRequest(messages))
	if err != nil {
		return nil, err
	}

	raw, err := decodeOutput[rawPlan](resp.Content)
	if err != nil {
		return nil, err
	}

	out := &proto.PlannerOutput{
		Steps:           raw.Steps,
		Commands:        make([]proto.CommandProposal, 0, len(raw.Commands)),
		Prerequisites:   raw.Prerequisites,
		Troubleshooting: raw.Troubleshooting,
		TokensUsed:      tokens,
	}
	var citations []proto.Citation
	if in.Research != nil {
		citations = in.Research.Citations
	}
	for _, rc := range raw.Commands {
		cmd := normalizeCommand(rc)
		if cmd.Command == "" {
			continue
		}
		cmd.Citations = citations
		out.Commands = append(out.Commands, cmd)
	}
	return out, nil
}

// normalizeCommand maps model-emitted enum strings onto the protocol enums.
// Unparseable privilege defaults to root and unparseable risk to high, so a
// sloppy model answer can only over-restrict, never under-restrict.
func normalizeCommand(rc rawCommand) proto.CommandProposal {
	priv, err := proto.ParsePrivilegeLevel(rc.PrivilegeLevel)
	if err != nil {
		priv = proto.PrivilegeRoot
	}
	risk, err := proto.ParseRiskLevel(rc.Risk)
	if err != nil {
		risk = proto.RiskHigh
	}
	return proto.CommandProposal{
		Command:         strings.TrimSpace(rc.Command),
		PrivilegeLevel:  priv,
		Risk:            risk,
		RiskExplanation: rc.RiskExplanation,
		DryRunHint:      rc.DryRunHint,
		ExpectedOutput:  rc.ExpectedOutput,
	}
}

func (p *Planner) buildPrompt(in PlannerInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", in.Query)
	b.WriteString(profileSummary(in.Profile))
	b.WriteString("\n\n")
	if in.Research != nil && in.Research.Summary != "" {
		fmt.Fprintf(&b, "Research summary:\n%s\n\n", truncate(in.Research.Summary, 4000))
	} else {
		b.WriteString("No research is available; plan conservatively from general knowledge.\n\n")
	}
	b.WriteString("Produce the plan JSON now.")
	return b.String()
}
