package stages

import (
	"context"
	"strings"
	"testing"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/proto"
)

func TestSynthesizerStreamsChunksAndDerivesMetadata(t *testing.T) {
	deps, collector, _ := testDeps(t, []llm.CompletionResponse{
		{
			Content: "Run df -h to see usage, then clean the package cache.",
			Usage:   llm.Usage{PromptTokens: 200, CompletionTokens: 50},
		},
	})
	s := &Synthesizer{Deps: deps}

	out, err := s.Run(context.Background(), SynthesizerInput{
		AgentID: "synthesizer-1",
		Query:   "how do I free disk space",
		Valid: &proto.ValidatorOutput{
			ValidatedCommands: []proto.CommandProposal{
				{Command: "df -h", Risk: proto.RiskLow},
				{Command: "sudo apt-get clean", Risk: proto.RiskLow},
			},
		},
	})
	if err != nil {
		t.Fatalf("synthesizer failed: %v", err)
	}

	chunks := collector.ofType(proto.EventMessageChunk)
	if len(chunks) == 0 {
		t.Fatal("expected at least one message:chunk event")
	}
	var streamed strings.Builder
	for _, c := range chunks {
		streamed.WriteString(c.Chunk.Content)
	}
	if streamed.String() != out.Response {
		t.Errorf("streamed text %q != response %q", streamed.String(), out.Response)
	}

	if out.Metadata.ResponseType != proto.ResponseAction {
		t.Errorf("responseType = %s, want action", out.Metadata.ResponseType)
	}
	if out.Metadata.CommandCount != 2 {
		t.Errorf("commandCount = %d, want 2", out.Metadata.CommandCount)
	}
	if out.Metadata.Complexity != proto.ComplexityModerate {
		t.Errorf("complexity = %s, want moderate", out.Metadata.Complexity)
	}
	if out.TokensUsed != 250 {
		t.Errorf("TokensUsed = %d, want 250", out.TokensUsed)
	}
}

func TestSynthesizerRepairClassification(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: "Restart the network service."},
	})
	s := &Synthesizer{Deps: deps}

	out, err := s.Run(context.Background(), SynthesizerInput{
		AgentID: "synthesizer-1",
		Query:   "my wifi is broken after the update",
		Valid: &proto.ValidatorOutput{
			ValidatedCommands: []proto.CommandProposal{
				{Command: "systemctl restart NetworkManager", Risk: proto.RiskMedium},
			},
		},
	})
	if err != nil {
		t.Fatalf("synthesizer failed: %v", err)
	}
	if out.Metadata.ResponseType != proto.ResponseRepair {
		t.Errorf("responseType = %s, want repair", out.Metadata.ResponseType)
	}
}

func TestSynthesizerInfoWhenNoCommands(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: "An inode stores file metadata."},
	})
	s := &Synthesizer{Deps: deps}

	out, err := s.Run(context.Background(), SynthesizerInput{
		AgentID: "synthesizer-1",
		Query:   "what is an inode",
	})
	if err != nil {
		t.Fatalf("synthesizer failed: %v", err)
	}
	if out.Metadata.ResponseType != proto.ResponseInfo {
		t.Errorf("responseType = %s, want info", out.Metadata.ResponseType)
	}
	if out.Metadata.CommandCount != 0 {
		t.Errorf("commandCount = %d, want 0", out.Metadata.CommandCount)
	}
	if out.Metadata.Complexity != proto.ComplexitySimple {
		t.Errorf("complexity = %s, want simple", out.Metadata.Complexity)
	}
}

func TestSynthesizerEmptyResponseIsRetryable(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: "   "},
	})
	s := &Synthesizer{Deps: deps}

	_, err := s.Run(context.Background(), SynthesizerInput{
		AgentID: "synthesizer-1",
		Query:   "anything",
	})
	if err == nil {
		t.Fatal("expected error for empty synthesizer output")
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
		t.Errorf("expected empty-response classification, got %v", err)
	}
}

func TestCuriousSuggestsFollowUp(t *testing.T) {
	deps, _, _ := testDeps(t, []llm.CompletionResponse{
		{Content: `{"question": "Want to automate the cleanup?", "options": ["Yes, with a timer", "No"]}`},
	})
	c := &Curious{Deps: deps}

	out, err := c.Run(context.Background(), CuriousInput{
		AgentID:  "curious-1",
		Query:    "free disk space",
		Response: "Cleaned up 2GB.",
	})
	if err != nil {
		t.Fatalf("curious failed: %v", err)
	}
	if out.Question != "Want to automate the cleanup?" {
		t.Errorf("unexpected question: %q", out.Question)
	}
	if len(out.Options) != 2 {
		t.Errorf("expected 2 options, got %d", len(out.Options))
	}
}
