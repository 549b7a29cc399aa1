package stages

import (
	"context"
	"fmt"
	"strings"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/proto"
)

const curiousDefaultPrompt = `You are a curious Linux assistant reviewing a
finished answer. Suggest one short follow-up question the user might want
answered next, with two or three concrete options. Respond with a single
JSON object: {"question": "...", "options": ["...", "..."]}.
If no follow-up is genuinely useful, return {"question": "", "options": []}.`

// CuriousInput feeds the optional post-run follow-up stage.
type CuriousInput struct {
	AgentID  string
	Query    string
	Response string
	History  []proto.ChatMessage
}

// CuriousOutput is a suggested follow-up question. An empty Question means
// the stage had nothing worth asking.
type CuriousOutput struct {
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	TokensUsed int      `json:"tokensUsed"`
}

// Curious is the extension point for user-specified post-run behavior. The
// default behavior proposes a follow-up question; deployments can swap the
// prompt to change what it does.
type Curious struct {
	Deps
	Prompt string
}

// Type returns the stage's agent type.
func (c *Curious) Type() proto.AgentType { return proto.AgentCurious }

// Run generates the follow-up suggestion. Failures here never affect the
// run; callers treat an error as "no suggestion".
func (c *Curious) Run(ctx context.Context, in CuriousInput) (*CuriousOutput, error) {
	system := c.Prompt
	if system == "" {
		system = curiousDefaultPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", in.Query)
	fmt.Fprintf(&b, "Answer given:\n%s\n", truncate(in.Response, 3000))

	messages := []llm.CompletionMessage{
		llm.NewSystemMessage(system),
		llm.NewUserMessage(b.String()),
	}
	resp, tokens, err := c.complete(ctx, in.AgentID, proto.AgentCurious, llm.NewCompletionRequest(messages))
	if err != nil {
		return nil, err
	}

	out, err := decodeOutput[CuriousOutput](resp.Content)
	if err != nil {
		return nil, err
	}
	out.Question = strings.TrimSpace(out.Question)
	out.TokensUsed = tokens
	return out, nil
}
