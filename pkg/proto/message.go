// Package proto defines the data model and wire protocol shared across the
// orchestration pipeline: chat messages, citations, command proposals, stage
// outputs, and the typed agent event stream.
package proto

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role represents the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidateRole validates if a string is a valid message role.
func ValidateRole(role string) (Role, bool) {
	switch Role(role) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(role), true
	default:
		return "", false
	}
}

// ParseRole parses a string into a Role with validation.
func ParseRole(s string) (Role, error) {
	if role, valid := ValidateRole(strings.ToLower(s)); valid {
		return role, nil
	}
	return "", fmt.Errorf("unknown message role: %s", s)
}

// String returns the string representation of Role.
func (r Role) String() string {
	return string(r)
}

// Citation is a source reference attached to research output and final
// answers. SourceWeight is the configured trust multiplier for the citation's
// domain, in [0,1].
type Citation struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Excerpt      string    `json:"excerpt,omitempty"`
	SourceWeight float64   `json:"sourceWeight"`
	Confidence   float64   `json:"confidence"`
	CrawledAt    time.Time `json:"crawledAt,omitempty"`
}

// PrivilegeLevel represents the privilege a proposed command needs to run.
type PrivilegeLevel string

const (
	PrivilegeReadOnly PrivilegeLevel = "read-only"
	PrivilegeUser     PrivilegeLevel = "user"
	PrivilegeRoot     PrivilegeLevel = "root"
)

// ValidatePrivilegeLevel validates if a string is a valid privilege level.
func ValidatePrivilegeLevel(level string) (PrivilegeLevel, bool) {
	switch PrivilegeLevel(level) {
	case PrivilegeReadOnly, PrivilegeUser, PrivilegeRoot:
		return PrivilegeLevel(level), true
	default:
		return "", false
	}
}

// ParsePrivilegeLevel parses a string into a PrivilegeLevel with validation.
func ParsePrivilegeLevel(s string) (PrivilegeLevel, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	// Models sometimes emit "readonly" or "read_only".
	switch normalized {
	case "readonly", "read_only", "read only":
		return PrivilegeReadOnly, nil
	case "sudo", "admin":
		return PrivilegeRoot, nil
	}
	if level, valid := ValidatePrivilegeLevel(normalized); valid {
		return level, nil
	}
	return "", fmt.Errorf("unknown privilege level: %s", s)
}

// String returns the string representation of PrivilegeLevel.
func (p PrivilegeLevel) String() string {
	return string(p)
}

// RiskLevel represents how dangerous a proposed command is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ValidateRiskLevel validates if a string is a valid risk level.
func ValidateRiskLevel(risk string) (RiskLevel, bool) {
	switch RiskLevel(risk) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(risk), true
	default:
		return "", false
	}
}

// ParseRiskLevel parses a string into a RiskLevel with validation.
func ParseRiskLevel(s string) (RiskLevel, error) {
	if risk, valid := ValidateRiskLevel(strings.ToLower(strings.TrimSpace(s))); valid {
		return risk, nil
	}
	return "", fmt.Errorf("unknown risk level: %s", s)
}

// String returns the string representation of RiskLevel.
func (r RiskLevel) String() string {
	return string(r)
}

// AtLeast reports whether this risk level is at or above the given level.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return riskRank(r) >= riskRank(other)
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return -1
	}
}

// CommandProposal is a shell command suggested to the user. Produced by the
// planner stage and filtered/annotated by the validator stage.
type CommandProposal struct {
	Command         string         `json:"command"`
	PrivilegeLevel  PrivilegeLevel `json:"privilegeLevel"`
	Risk            RiskLevel      `json:"risk"`
	RiskExplanation string         `json:"riskExplanation,omitempty"`
	DryRunHint      string         `json:"dryRunHint,omitempty"`
	ExpectedOutput  string         `json:"expectedOutput,omitempty"`
	Citations       []Citation     `json:"citations,omitempty"`
}

// ChatMessage is one turn in a chat. Assistant messages are produced by
// finalizing an orchestration run.
type ChatMessage struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Citations []Citation        `json:"citations,omitempty"`
	Commands  []CommandProposal `json:"commands,omitempty"`
	Events    []*AgentEvent     `json:"events,omitempty"`
	ImageRef  string            `json:"imageRef,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewRunID generates a unique run identifier.
func NewRunID() string {
	return "run-" + uuid.NewString()
}

// NewAgentID generates a unique agent identifier with a readable prefix,
// e.g. "research-7f3a2c1d".
func NewAgentID(agentType AgentType) string {
	return fmt.Sprintf("%s-%s", agentType, uuid.NewString()[:8])
}

// NewQuestionID generates a unique ID correlating an agent question with the
// user's eventual answer.
func NewQuestionID() string {
	return "q-" + uuid.NewString()[:8]
}
