package proto

import (
	"fmt"
	"strings"
)

// Tier represents the subscription tier of the requesting user.
type Tier string

const (
	TierTrial Tier = "trial"
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
)

// ValidateTier validates if a string is a valid tier.
func ValidateTier(tier string) (Tier, bool) {
	switch Tier(tier) {
	case TierTrial, TierFree, TierPro:
		return Tier(tier), true
	default:
		return "", false
	}
}

// ParseTier parses a string into a Tier with validation.
func ParseTier(s string) (Tier, error) {
	if tier, valid := ValidateTier(strings.ToLower(s)); valid {
		return tier, nil
	}
	return "", fmt.Errorf("unknown tier: %s", s)
}

// String returns the string representation of Tier.
func (t Tier) String() string {
	return string(t)
}

// SystemProfile describes the user's machine so planner output can target the
// right distro and package manager. All fields are best-effort.
type SystemProfile struct {
	Distro         string `json:"distro,omitempty"`
	DistroVersion  string `json:"distroVersion,omitempty"`
	Kernel         string `json:"kernel,omitempty"`
	PackageManager string `json:"packageManager,omitempty"`
	Shell          string `json:"shell,omitempty"`
	Desktop        string `json:"desktop,omitempty"`
	Arch           string `json:"arch,omitempty"`
}

// OrchestratorContext is the immutable per-run input. The chat/API layer
// builds one per incoming user message; the orchestrator never mutates it.
type OrchestratorContext struct {
	ChatID         string         `json:"chatId"`
	UserID         string         `json:"userId,omitempty"` // Empty for anonymous/trial users
	SessionID      string         `json:"sessionId"`
	Tier           Tier           `json:"tier"`
	SystemProfile  *SystemProfile `json:"systemProfile,omitempty"`
	MessageHistory []ChatMessage  `json:"messageHistory"`
}

// Validate checks the context has the fields every run requires.
func (c *OrchestratorContext) Validate() error {
	if c.ChatID == "" {
		return fmt.Errorf("chatId is required")
	}
	if c.SessionID == "" {
		return fmt.Errorf("sessionId is required")
	}
	if _, valid := ValidateTier(string(c.Tier)); !valid {
		return fmt.Errorf("invalid tier: %s", c.Tier)
	}
	if len(c.MessageHistory) == 0 {
		return fmt.Errorf("message history must contain the current user message")
	}
	last := c.MessageHistory[len(c.MessageHistory)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("last history message must be from the user, got %s", last.Role)
	}
	return nil
}

// UserMessage returns the current user message driving this run.
func (c *OrchestratorContext) UserMessage() string {
	if len(c.MessageHistory) == 0 {
		return ""
	}
	return c.MessageHistory[len(c.MessageHistory)-1].Content
}
