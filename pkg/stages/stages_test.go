package stages

import (
	"sync"
	"testing"

	"tuxpilot/pkg/agent"
	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/agent/llmerrors"
	"tuxpilot/pkg/proto"
	"tuxpilot/pkg/usage"
)

// eventCollector records emitted events for assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []*proto.AgentEvent
}

func (c *eventCollector) Emit(event *proto.AgentEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return true
}

func (c *eventCollector) ofType(t proto.EventType) []*proto.AgentEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*proto.AgentEvent
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testDeps(t *testing.T, responses []llm.CompletionResponse) (Deps, *eventCollector, *usage.Accumulator) {
	t.Helper()
	collector := &eventCollector{}
	acc := usage.NewAccumulator("run-test", "chat-test")
	deps := Deps{
		Client: agent.NewMockClient(responses, nil),
		Acc:    acc,
		Events: collector,
	}
	return deps, collector, acc
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
		fails bool
	}{
		{name: "bare object", input: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "fence without language", input: "```\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounding prose", input: "Here you go:\n{\"a\":1}\nHope that helps!", want: `{"a":1}`},
		{name: "no object", input: "sorry, I cannot help", fails: true},
		{name: "empty", input: "", fails: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSON(tc.input)
			if tc.fails {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDecodeOutputClassifiesParseFailure(t *testing.T) {
	_, err := decodeOutput[proto.PlannerOutput]("not json at all")
	if err == nil {
		t.Fatal("expected error for unparseable response")
	}
	// Parse failures must stay retryable so the executor re-asks the model.
	if !llmerrors.IsRetryable(err) {
		t.Errorf("parse failure should be retryable, got %v", err)
	}
	if !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
		t.Errorf("parse failure should classify as empty response, got %v", err)
	}
}

func TestProfileSummary(t *testing.T) {
	if got := profileSummary(nil); got != "System profile: unknown (no discovery data)." {
		t.Errorf("nil profile: %q", got)
	}
	p := &proto.SystemProfile{Distro: "Arch Linux", PackageManager: "pacman", Shell: "zsh"}
	got := profileSummary(p)
	want := "System profile: distro Arch Linux, package manager pacman, shell zsh."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSelectStrategy(t *testing.T) {
	cases := []struct {
		tier  proto.Tier
		query string
		want  Strategy
	}{
		{proto.TierFree, "how do I list open ports", StrategyQuick},
		{proto.TierTrial, "why is my disk full", StrategyQuick},
		{proto.TierPro, "install htop", StrategyAdaptive},
		{proto.TierPro, "why does my wifi drop after suspend", StrategyDeep},
		{proto.TierPro, "help me debug a kernel panic", StrategyDeep},
	}
	for _, tc := range cases {
		if got := SelectStrategy(tc.tier, tc.query); got != tc.want {
			t.Errorf("SelectStrategy(%s, %q) = %s, want %s", tc.tier, tc.query, got, tc.want)
		}
	}
}
