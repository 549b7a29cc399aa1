package proto

import (
	"strings"
	"testing"
	"time"
)

func TestParseRiskLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    RiskLevel
		wantErr bool
	}{
		{"low", RiskLow, false},
		{"MEDIUM", RiskMedium, false},
		{" high ", RiskHigh, false},
		{"catastrophic", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseRiskLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseRiskLevel(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRiskLevel(%q): unexpected error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseRiskLevel(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestRiskAtLeast(t *testing.T) {
	if !RiskHigh.AtLeast(RiskMedium) {
		t.Error("high should be at least medium")
	}
	if !RiskMedium.AtLeast(RiskMedium) {
		t.Error("medium should be at least medium")
	}
	if RiskLow.AtLeast(RiskMedium) {
		t.Error("low should not be at least medium")
	}
}

func TestParsePrivilegeLevelAliases(t *testing.T) {
	for input, want := range map[string]PrivilegeLevel{
		"read-only": PrivilegeReadOnly,
		"readonly":  PrivilegeReadOnly,
		"read_only": PrivilegeReadOnly,
		"user":      PrivilegeUser,
		"root":      PrivilegeRoot,
		"sudo":      PrivilegeRoot,
	} {
		got, err := ParsePrivilegeLevel(input)
		if err != nil {
			t.Errorf("ParsePrivilegeLevel(%q): unexpected error: %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePrivilegeLevel(%q) = %s, want %s", input, got, want)
		}
	}

	if _, err := ParsePrivilegeLevel("kernel"); err == nil {
		t.Error("expected error for unknown privilege level")
	}
}

func TestParseAgentType(t *testing.T) {
	for _, valid := range []string{"research", "planner", "validator", "synthesizer", "curious"} {
		if _, err := ParseAgentType(valid); err != nil {
			t.Errorf("ParseAgentType(%q): unexpected error: %v", valid, err)
		}
	}
	if _, err := ParseAgentType("architect"); err == nil {
		t.Error("expected error for unknown agent type")
	}
}

func TestNewAgentID(t *testing.T) {
	id := NewAgentID(AgentResearch)
	if !strings.HasPrefix(id, "research-") {
		t.Errorf("expected research- prefix, got %q", id)
	}
	if id == NewAgentID(AgentResearch) {
		t.Error("expected unique agent IDs")
	}
}

func TestOrchestratorContextValidate(t *testing.T) {
	valid := &OrchestratorContext{
		ChatID:    "chat-1",
		SessionID: "sess-1",
		Tier:      TierFree,
		MessageHistory: []ChatMessage{
			{Role: RoleUser, Content: "why is my disk full?", Timestamp: time.Now()},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid context, got: %v", err)
	}
	if valid.UserMessage() != "why is my disk full?" {
		t.Errorf("unexpected user message: %q", valid.UserMessage())
	}

	// Anonymous users are allowed: no userId required.
	valid.UserID = ""
	if err := valid.Validate(); err != nil {
		t.Errorf("anonymous context should validate, got: %v", err)
	}

	missing := &OrchestratorContext{SessionID: "sess-1", Tier: TierFree}
	if err := missing.Validate(); err == nil {
		t.Error("expected error for missing chatId")
	}

	badTier := &OrchestratorContext{
		ChatID: "chat-1", SessionID: "sess-1", Tier: "platinum",
		MessageHistory: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	if err := badTier.Validate(); err == nil {
		t.Error("expected error for invalid tier")
	}

	wrongTail := &OrchestratorContext{
		ChatID: "chat-1", SessionID: "sess-1", Tier: TierPro,
		MessageHistory: []ChatMessage{{Role: RoleAssistant, Content: "hello"}},
	}
	if err := wrongTail.Validate(); err == nil {
		t.Error("expected error when last message is not from the user")
	}
}
