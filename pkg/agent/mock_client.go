package agent

import (
	"context"
	"fmt"
	"sync"

	"tuxpilot/pkg/agent/llm"
)

// MockClient provides a controllable implementation of llm.Client for testing.
type MockClient struct {
	mu            sync.Mutex
	responses     []llm.CompletionResponse
	responseIndex int
	errors        []error
	errorIndex    int
	calls         int
	model         string
}

// NewMockClient creates a new mock client with predefined responses. Errors
// are consumed before responses, so interleave nils to mix failures with
// successes.
func NewMockClient(responses []llm.CompletionResponse, errors []error) *MockClient {
	return &MockClient{
		responses: responses,
		errors:    errors,
		model:     "mock-model",
	}
}

// Complete returns the next predefined response or error.
func (m *MockClient) Complete(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		if err != nil {
			return llm.CompletionResponse{}, err
		}
	}

	if m.responseIndex >= len(m.responses) {
		return llm.CompletionResponse{}, fmt.Errorf("mock client: no more responses")
	}
	resp := m.responses[m.responseIndex]
	m.responseIndex++
	return resp, nil
}

// Stream adapts the next predefined response into a chunk stream.
func (m *MockClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.CompleteAsStream(ctx, m, in)
}

// ModelName returns the mock model name.
func (m *MockClient) ModelName() string {
	return m.model
}

// Calls reports how many Complete calls the mock has served.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
