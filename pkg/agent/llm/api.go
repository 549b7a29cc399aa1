// Package llm provides interfaces and types for Large Language Model client
// implementations.
package llm

import (
	"context"
	"fmt"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the AI assistant.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// TemperatureDefault is the default temperature for planning, validation,
	// and judgment tasks. Allows some exploration while staying focused.
	TemperatureDefault = 0.3

	// TemperatureSynthesis is used for final prose generation, where a bit
	// more variation reads better.
	TemperatureSynthesis = 0.7
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// Usage reports the token counts for one completion, as returned by the
// provider. A zero Usage means the provider did not report; callers fall
// back to estimation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// IsZero reports whether the provider returned no usage data.
func (u Usage) IsZero() bool {
	return u.PromptTokens == 0 && u.CompletionTokens == 0
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "max_tokens", etc.
	Usage      Usage
}

// StreamChunk represents a chunk of streamed completion response. The final
// chunk has Done set and carries the total Usage.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
	Usage   Usage
}

// Client defines the interface for language model interactions.
type Client interface {
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// ModelName returns the model this client talks to.
	ModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   4096,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// ValidateMessages checks the request message list is usable by every
// provider: non-empty and ending with a user message.
func ValidateMessages(messages []CompletionMessage) error {
	if len(messages) == 0 {
		return fmt.Errorf("message list cannot be empty")
	}
	last := messages[len(messages)-1]
	if last.Role != RoleUser {
		return fmt.Errorf("last message must be user role, got: %s", last.Role)
	}
	return nil
}

// CompleteAsStream adapts a Complete call into the Stream interface for
// providers whose streaming path is not wired. The single content chunk is
// followed by a Done chunk carrying usage.
func CompleteAsStream(ctx context.Context, c Client, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- StreamChunk{Error: err}
			return
		}
		ch <- StreamChunk{Content: resp.Content}
		ch <- StreamChunk{Done: true, Usage: resp.Usage}
	}()
	return ch, nil
}
