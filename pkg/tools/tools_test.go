package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tuxpilot/pkg/proto"
)

type fakeTool struct {
	name   string
	result *Result
	err    error
}

func (f *fakeTool) Name() string { return f.name }

func (f *fakeTool) Exec(ctx context.Context, query string) (*Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "lookup"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	r.Register(&fakeTool{name: "lookup"})
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "b"})
	r.Register(&fakeTool{name: "a"})
	r.Register(&fakeTool{name: "c"})

	names := r.Names()
	if len(names) != 3 || names[0] != "b" || names[1] != "a" || names[2] != "c" {
		t.Errorf("Names() = %v, want [b a c]", names)
	}
	if _, ok := r.Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get(missing) unexpectedly found")
	}
}

func TestRunConvertsFailureToEmptyResult(t *testing.T) {
	result, inv := Run(context.Background(), &fakeTool{name: "lookup", err: errors.New("upstream down")}, "query")
	if result == nil {
		t.Fatal("result must never be nil")
	}
	if result.Content != "" || len(result.Citations) != 0 {
		t.Errorf("failed tool should yield empty result, got %+v", result)
	}
	if inv.Err == nil {
		t.Error("invocation should carry the failure")
	}
	if inv.Tool != "lookup" || inv.Input != "query" {
		t.Errorf("invocation = %+v", inv)
	}
}

func TestRunNormalizesNilResult(t *testing.T) {
	result, inv := Run(context.Background(), &fakeTool{name: "lookup"}, "q")
	if result == nil {
		t.Fatal("result must never be nil")
	}
	if inv.Err != nil {
		t.Errorf("unexpected error: %v", inv.Err)
	}
}

func TestSortCitationsByWeightThenURL(t *testing.T) {
	citations := []proto.Citation{
		{URL: "https://z.example.com", SourceWeight: 0.5},
		{URL: "https://wiki.archlinux.org/title/Pacman", SourceWeight: 0.95},
		{URL: "https://a.example.com", SourceWeight: 0.5},
	}
	SortCitations(citations)

	if citations[0].URL != "https://wiki.archlinux.org/title/Pacman" {
		t.Errorf("highest weight should sort first, got %s", citations[0].URL)
	}
	if citations[1].URL != "https://a.example.com" || citations[2].URL != "https://z.example.com" {
		t.Errorf("equal weights should order by URL: %v", citations)
	}
}

func TestDefaultRegistryToolSet(t *testing.T) {
	r := DefaultRegistry(proto.SystemProfile{Distro: "debian", PackageManager: "apt"}, 5)
	for _, name := range []string{ToolClock, ToolCalculator, ToolWebSearch, ToolWiki, ToolManpage, ToolPackageLookup} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("default registry missing %s", name)
		}
	}
}

func TestCalculatorEvaluatesExpressions(t *testing.T) {
	calc := NewCalculatorTool()
	tests := []struct {
		expr string
		want string
	}{
		{"2+3*4", "14"},
		{"(2+3)*4", "20"},
		{"10/4", "2.5"},
		{"-3+5", "2"},
	}
	for _, tt := range tests {
		result, err := calc.Exec(context.Background(), tt.expr)
		if err != nil {
			t.Errorf("Exec(%q) failed: %v", tt.expr, err)
			continue
		}
		if !strings.Contains(result.Content, tt.want) {
			t.Errorf("Exec(%q) = %q, want it to contain %q", tt.expr, result.Content, tt.want)
		}
	}
}

func TestCalculatorRejectsMalformedInput(t *testing.T) {
	calc := NewCalculatorTool()
	for _, expr := range []string{"", "2+", "(1+2", "abc"} {
		if _, err := calc.Exec(context.Background(), expr); err == nil {
			t.Errorf("Exec(%q) should fail", expr)
		}
	}
}
