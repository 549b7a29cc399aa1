// Package tools provides the read-only lookup tools research agents call
// while answering a question: web search, wiki search, man pages, package
// metadata, plus small local utilities.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tuxpilot/pkg/logx"
	"tuxpilot/pkg/proto"
)

// Result is the structured outcome of one tool invocation.
type Result struct {
	Content   string           // Human-readable summary for the model
	Citations []proto.Citation // Sources backing the content, if any
}

// Tool is a read-only lookup invoked with a free-form query. Implementations
// must honor ctx cancellation; they never mutate the system.
type Tool interface {
	Name() string
	Exec(ctx context.Context, query string) (*Result, error)
}

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 10 * time.Second

// Invocation reports one completed tool call, including failures that were
// converted to empty results.
type Invocation struct {
	Tool       string
	Input      string
	Output     string
	DurationMs int64
	Err        error
}

// Run executes a tool under its own timeout. A failed or timed-out tool
// yields an empty Result rather than an error, so one broken source never
// fails a research pass; the failure is reported in the Invocation for
// event emission.
func Run(ctx context.Context, t Tool, query string) (*Result, Invocation) {
	toolCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	start := time.Now()
	result, err := t.Exec(toolCtx, query)
	inv := Invocation{
		Tool:       t.Name(),
		Input:      query,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        err,
	}
	if err != nil {
		logx.Warnf("tool %s failed: %v", t.Name(), err)
		return &Result{}, inv
	}
	if result == nil {
		result = &Result{}
	}
	inv.Output = result.Content
	return result, inv
}

// Registry holds the tools available to a run, keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name panics; tool sets are
// assembled once at startup.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		panic(fmt.Sprintf("tool %q registered twice", t.Name()))
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.tools[name]
	return t, exists
}

// Names returns all registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortCitations orders citations by descending source weight, breaking ties
// by URL for stable output.
func SortCitations(citations []proto.Citation) {
	sort.SliceStable(citations, func(i, j int) bool {
		if citations[i].SourceWeight != citations[j].SourceWeight {
			return citations[i].SourceWeight > citations[j].SourceWeight
		}
		return citations[i].URL < citations[j].URL
	})
}
