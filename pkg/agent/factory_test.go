package agent

import (
	"context"
	"errors"
	"testing"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/proto"
)

func TestFactoryOllamaNeedsNoKey(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Default = config.ModelLlama

	f := NewFactory(cfg)
	client, err := f.ClientFor(proto.AgentSynthesizer)
	if err != nil {
		t.Fatalf("ClientFor: %v", err)
	}
	if client.ModelName() != config.ModelLlama {
		t.Errorf("ModelName() = %q, want %q", client.ModelName(), config.ModelLlama)
	}
}

func TestFactoryCachesPerModel(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Default = config.ModelLlama

	f := NewFactory(cfg)
	a, err := f.ClientForModel(config.ModelLlama)
	if err != nil {
		t.Fatalf("ClientForModel: %v", err)
	}
	b, err := f.ClientForModel(config.ModelLlama)
	if err != nil {
		t.Fatalf("ClientForModel: %v", err)
	}
	if a != b {
		t.Error("expected cached client for repeated model lookups")
	}
}

func TestFactoryMissingAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	cfg := config.Default()

	f := NewFactory(cfg)
	if _, err := f.ClientForModel(config.ModelClaudeSonnet); err == nil {
		t.Error("expected error when API key is missing")
	}
}

func TestFactoryAnthropicFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	cfg := config.Default()

	f := NewFactory(cfg)
	client, err := f.ClientForModel(config.ModelClaudeSonnet)
	if err != nil {
		t.Fatalf("ClientForModel: %v", err)
	}
	if client.ModelName() != config.ModelClaudeSonnet {
		t.Errorf("ModelName() = %q", client.ModelName())
	}
}

func TestMockClientSequence(t *testing.T) {
	mock := NewMockClient(
		[]llm.CompletionResponse{{Content: "ok", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5}}},
		[]error{errors.New("boom"), nil},
	)

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")})
	if _, err := mock.Complete(context.Background(), req); err == nil {
		t.Fatal("expected first call to fail")
	}
	resp, err := mock.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens() != 15 {
		t.Errorf("TotalTokens() = %d, want 15", resp.Usage.TotalTokens())
	}
	if mock.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", mock.Calls())
	}
}
