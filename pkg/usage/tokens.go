// Package usage tracks token consumption and cost per run and per agent,
// with optional durable persistence.
package usage

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts for text that providers did not
// report usage for. All supported models approximate well with the GPT-4
// encoding.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter. The codec load can only fail on
// a broken vocabulary embed, in which case counting falls back to the
// 4-chars-per-token estimate.
func NewTokenCounter() (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc == nil || tc.codec == nil {
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// EstimateUsage approximates prompt and completion token counts from the
// raw texts, for providers that do not report usage.
func (tc *TokenCounter) EstimateUsage(prompt, completion string) (promptTokens, completionTokens int) {
	return tc.CountTokens(prompt), tc.CountTokens(completion)
}
