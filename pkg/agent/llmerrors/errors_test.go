package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorTypeString(t *testing.T) {
	cases := map[ErrorType]string{
		ErrorTypeRateLimit:     "rate_limit",
		ErrorTypeTransient:     "transient",
		ErrorTypeEmptyResponse: "empty_response",
		ErrorTypeAuth:          "auth",
		ErrorTypeBadPrompt:     "bad_prompt",
		ErrorTypeCanceled:      "canceled",
		ErrorTypeUnknown:       "unknown",
	}
	for et, want := range cases {
		if got := et.String(); got != want {
			t.Errorf("ErrorType(%d).String() = %q, want %q", et, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		errType   ErrorType
		retryable bool
	}{
		{"rate limit retryable", ErrorTypeRateLimit, true},
		{"transient retryable", ErrorTypeTransient, true},
		{"empty response retryable", ErrorTypeEmptyResponse, true},
		{"unknown retryable", ErrorTypeUnknown, true},
		{"auth not retryable", ErrorTypeAuth, false},
		{"bad prompt not retryable", ErrorTypeBadPrompt, false},
		{"canceled not retryable", ErrorTypeCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewError(tt.errType, "test")
			if e.IsRetryable() != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", e.IsRetryable(), tt.retryable)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{400, ErrorTypeBadPrompt},
		{413, ErrorTypeBadPrompt},
		{500, ErrorTypeTransient},
		{503, ErrorTypeTransient},
		{418, ErrorTypeUnknown},
	}
	for _, tt := range tests {
		got := ClassifyStatus(tt.status, "x")
		if got.Type != tt.want {
			t.Errorf("ClassifyStatus(%d).Type = %s, want %s", tt.status, got.Type, tt.want)
		}
		if got.StatusCode != tt.status {
			t.Errorf("ClassifyStatus(%d).StatusCode = %d", tt.status, got.StatusCode)
		}
	}
}

func TestClassifyStrings(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"rate limit exceeded for model", ErrorTypeRateLimit},
		{"server overloaded, try later", ErrorTypeRateLimit},
		{"invalid API key provided", ErrorTypeAuth},
		{"prompt exceeds maximum context window", ErrorTypeBadPrompt},
		{"dial tcp: connection refused", ErrorTypeTransient},
		{"upstream returned 502 Bad Gateway", ErrorTypeTransient},
		{"something entirely different", ErrorTypeUnknown},
	}
	for _, tt := range tests {
		got := Classify(errors.New(tt.msg))
		if got.Type != tt.want {
			t.Errorf("Classify(%q).Type = %s, want %s", tt.msg, got.Type, tt.want)
		}
	}
}

func TestClassifyContextErrors(t *testing.T) {
	if got := Classify(context.Canceled); got.Type != ErrorTypeCanceled {
		t.Errorf("Classify(context.Canceled).Type = %s, want canceled", got.Type)
	}
	if got := Classify(context.DeadlineExceeded); got.Type != ErrorTypeCanceled {
		t.Errorf("Classify(context.DeadlineExceeded).Type = %s, want canceled", got.Type)
	}
}

func TestClassifyPassthrough(t *testing.T) {
	orig := NewErrorWithStatus(ErrorTypeAuth, 401, "bad key")
	wrapped := fmt.Errorf("calling provider: %w", orig)
	got := Classify(wrapped)
	if got != orig {
		t.Error("Classify should pass through an already-classified error")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	e := NewErrorWithCause(ErrorTypeTransient, cause, "wrapped")
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find wrapped cause")
	}
	if !Is(fmt.Errorf("outer: %w", e), ErrorTypeTransient) {
		t.Error("Is should classify through wrapping")
	}
}
