package proto

import (
	"fmt"
	"strings"
)

// AgentType identifies a stage agent kind. Circuit breaker state and model
// selection are keyed by agent type.
type AgentType string

const (
	AgentResearch    AgentType = "research"
	AgentPlanner     AgentType = "planner"
	AgentValidator   AgentType = "validator"
	AgentSynthesizer AgentType = "synthesizer"
	AgentCurious     AgentType = "curious"
)

// ValidateAgentType validates if a string is a valid agent type.
func ValidateAgentType(agentType string) (AgentType, bool) {
	switch AgentType(agentType) {
	case AgentResearch, AgentPlanner, AgentValidator, AgentSynthesizer, AgentCurious:
		return AgentType(agentType), true
	default:
		return "", false
	}
}

// ParseAgentType parses a string into an AgentType with validation.
func ParseAgentType(s string) (AgentType, error) {
	if agentType, valid := ValidateAgentType(strings.ToLower(s)); valid {
		return agentType, nil
	}
	return "", fmt.Errorf("unknown agent type: %s", s)
}

// String returns the string representation of AgentType.
func (a AgentType) String() string {
	return string(a)
}

// ResearchOutput is what the research stage produces: sources plus a summary,
// and optionally a request to deepen into a narrower sub-topic.
type ResearchOutput struct {
	Citations   []Citation `json:"citations"`
	Summary     string     `json:"summary"`
	NeedsDeeper bool       `json:"needsDeeper,omitempty"`
	SubTopic    string     `json:"subTopic,omitempty"`
	TokensUsed  int        `json:"tokensUsed"`
}

// PlanStep is one ordered step of a plan.
type PlanStep struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// PlannerOutput is the planner stage result: ordered steps and the commands
// that realize them.
type PlannerOutput struct {
	Steps           []PlanStep        `json:"steps"`
	Commands        []CommandProposal `json:"commands"`
	Prerequisites   []string          `json:"prerequisites,omitempty"`
	Troubleshooting []string          `json:"troubleshooting,omitempty"`
	TokensUsed      int               `json:"tokensUsed"`
}

// ValidatorOutput is the validator stage result. ValidatedCommands is always
// a subset of the planner's commands (possibly re-annotated); Blocked holds
// commands too risky to surface as executable.
type ValidatorOutput struct {
	ValidatedCommands []CommandProposal `json:"validatedCommands"`
	Blocked           []CommandProposal `json:"blocked,omitempty"`
	Warnings          []string          `json:"warnings,omitempty"`
	Suggestions       []string          `json:"suggestions,omitempty"`
	TokensUsed        int               `json:"tokensUsed"`
}

// ResponseType categorizes the final answer.
type ResponseType string

const (
	ResponseInfo    ResponseType = "info"
	ResponseAction  ResponseType = "action"
	ResponseRepair  ResponseType = "repair"
	ResponseDecline ResponseType = "decline"
)

// ValidateResponseType validates if a string is a valid response type.
func ValidateResponseType(responseType string) (ResponseType, bool) {
	switch ResponseType(responseType) {
	case ResponseInfo, ResponseAction, ResponseRepair, ResponseDecline:
		return ResponseType(responseType), true
	default:
		return "", false
	}
}

// ParseResponseType parses a string into a ResponseType with validation.
func ParseResponseType(s string) (ResponseType, error) {
	if responseType, valid := ValidateResponseType(strings.ToLower(s)); valid {
		return responseType, nil
	}
	return "", fmt.Errorf("unknown response type: %s", s)
}

// String returns the string representation of ResponseType.
func (r ResponseType) String() string {
	return string(r)
}

// Complexity categorizes how involved the final answer is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
	ComplexityDecline  Complexity = "decline"
)

// ValidateComplexity validates if a string is a valid complexity.
func ValidateComplexity(complexity string) (Complexity, bool) {
	switch Complexity(complexity) {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityDecline:
		return Complexity(complexity), true
	default:
		return "", false
	}
}

// ParseComplexity parses a string into a Complexity with validation.
func ParseComplexity(s string) (Complexity, error) {
	if complexity, valid := ValidateComplexity(strings.ToLower(s)); valid {
		return complexity, nil
	}
	return "", fmt.Errorf("unknown complexity: %s", s)
}

// String returns the string representation of Complexity.
func (c Complexity) String() string {
	return string(c)
}

// ResponseMetadata describes the shape of the synthesized answer.
type ResponseMetadata struct {
	ResponseType ResponseType `json:"responseType"`
	Complexity   Complexity   `json:"complexity"`
	CommandCount int          `json:"commandCount"`
}

// SynthesizerOutput is the synthesizer stage result: the final prose plus
// response metadata.
type SynthesizerOutput struct {
	Response   string           `json:"response"`
	Metadata   ResponseMetadata `json:"metadata"`
	TokensUsed int              `json:"tokensUsed"`
}

// AgentMetric is the per-agent token/cost breakdown reported in the terminal
// message:done event.
type AgentMetric struct {
	AgentID    string    `json:"agentId"`
	AgentType  AgentType `json:"agentType"`
	Model      string    `json:"model,omitempty"`
	TokensUsed int       `json:"tokensUsed"`
	CostUSD    float64   `json:"costUsd,omitempty"`
}
