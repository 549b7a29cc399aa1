package logx

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

// captureLogger returns a logger writing into a buffer for assertions.
func captureLogger(agentID string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{
		agentID: agentID,
		logger:  log.New(&buf, "", 0),
	}, &buf
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger("research-1")

	if logger.GetAgentID() != "research-1" {
		t.Errorf("Expected agent ID 'research-1', got '%s'", logger.GetAgentID())
	}
}

func TestLogFormat(t *testing.T) {
	logger, buf := captureLogger("planner")
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[planner]") {
		t.Errorf("Expected agent ID in output, got: %s", output)
	}
	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}
	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	SetDebug(false, nil)
	defer SetDebug(false, nil)

	logger, buf := captureLogger("validator")
	logger.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("Expected no debug output when disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true, []string{"orchestrator"})
	defer SetDebug(false, nil)

	if !IsDebugEnabledForDomain("orchestrator") {
		t.Error("Expected orchestrator domain to be enabled")
	}
	if IsDebugEnabledForDomain("tools") {
		t.Error("Expected tools domain to be disabled")
	}

	SetDebug(true, nil)
	if !IsDebugEnabledForDomain("tools") {
		t.Error("Expected all domains enabled when no filter is set")
	}
}

func TestWithAgentID(t *testing.T) {
	base := NewLogger("system")
	scoped := base.WithAgentID("synthesizer")

	if scoped.GetAgentID() != "synthesizer" {
		t.Errorf("Expected scoped agent ID 'synthesizer', got '%s'", scoped.GetAgentID())
	}
	if base.GetAgentID() != "system" {
		t.Error("Expected original logger to be unchanged")
	}
}

func TestContextAgentID(t *testing.T) {
	ctx := WithAgentID(context.Background(), "research-2")

	if id, ok := ctx.Value(agentIDKey{}).(string); !ok || id != "research-2" {
		t.Errorf("Expected agent ID 'research-2' in context, got %q", id)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ignored") != nil {
		t.Error("Expected Wrap(nil) to return nil")
	}

	base := Errorf("base failure")
	wrapped := Wrap(base, "loading config")
	if wrapped == nil {
		t.Fatal("Expected wrapped error")
	}
	if !strings.Contains(wrapped.Error(), "loading config: base failure") {
		t.Errorf("Unexpected wrapped error: %v", wrapped)
	}
}
