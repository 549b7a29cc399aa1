// Package config provides configuration loading, validation, and defaults for
// the orchestration pipeline.
//
// KEY PRINCIPLES:
//
//  1. Configuration is loaded once at startup and passed by value. There is
//     no mutable global config; components receive the sections they need.
//  2. Everything on the hot path (breaker thresholds, timeouts, retry counts,
//     degradation and model-selection toggles, strategy caps, source weights)
//     is overridable from the config file or TUXPILOT_* environment
//     variables without code changes.
//  3. Validation happens before use. Invalid configs are rejected at load
//     time, not discovered mid-run.
package config

import (
	"fmt"
	"strings"
	"time"

	"tuxpilot/pkg/proto"
)

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderGoogle    = "google"
)

// Model name constants for the providers we ship clients for.
const (
	ModelClaudeSonnet = "claude-sonnet-4-20250514"
	ModelClaudeHaiku  = "claude-3-5-haiku-20241022"
	ModelGPT5Mini     = "gpt-5-mini"
	ModelO3Mini       = "o3-mini"
	ModelGeminiFlash  = "gemini-2.0-flash"
	ModelLlama        = "llama3.2"
)

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (anthropic, openai, ollama, google)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for the
// models the pipeline selects between. Unknown models fall back to the
// provider's default pricing of zero (accounting still tracks tokens).
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	ModelClaudeSonnet: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelClaudeHaiku: {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelGPT5Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         0.25,
		OutputCPM:        2.0,
		MaxContextTokens: 400000,
		MaxOutputTokens:  128000,
	},
	ModelO3Mini: {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
	},
	ModelGeminiFlash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.1,
		OutputCPM:        0.4,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  8192,
	},
	ModelLlama: {
		Provider:         ProviderOllama,
		InputCPM:         0,
		OutputCPM:        0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  8192,
	},
}

// LookupModel returns registry info for a model, inferring the provider from
// the name when the model is not registered.
func LookupModel(name string) ModelInfo {
	if info, exists := KnownModels[name]; exists {
		return info
	}
	// Infer provider from common naming patterns.
	switch {
	case strings.HasPrefix(name, "claude"):
		return ModelInfo{Provider: ProviderAnthropic}
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return ModelInfo{Provider: ProviderOpenAI}
	case strings.HasPrefix(name, "gemini"):
		return ModelInfo{Provider: ProviderGoogle}
	default:
		return ModelInfo{Provider: ProviderOllama}
	}
}

// ResilienceConfig holds circuit breaker and retry/timeout executor settings.
type ResilienceConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // Consecutive failures before opening the breaker
	ResetTimeout     time.Duration `yaml:"reset_timeout"`     // Open -> half-open cooldown
	MaxRetries       int           `yaml:"max_retries"`       // Retries after the first attempt
	RetryDelay       time.Duration `yaml:"retry_delay"`       // Fixed delay between attempts
	AgentTimeout     time.Duration `yaml:"agent_timeout"`     // Per-attempt timeout for one stage call
}

// StrategyConfig caps research result counts per strategy.
type StrategyConfig struct {
	QuickMaxResults    int `yaml:"quick_max_results"`
	DeepMaxResults     int `yaml:"deep_max_results"`
	AdaptiveMaxResults int `yaml:"adaptive_max_results"`
	SubResearchBudget  int `yaml:"sub_research_budget"` // Max recursive research deepenings per run
}

// ModelsConfig selects which model serves each stage kind when model
// selection is enabled.
type ModelsConfig struct {
	Default   string `yaml:"default"`   // Used for every stage when selection is disabled
	Fast      string `yaml:"fast"`      // Research/curious stages when selection is enabled
	Strong    string `yaml:"strong"`    // Planner/validator/synthesizer stages when selection is enabled
	OllamaURL string `yaml:"ollama_url"`
}

// SourceWeightsConfig is the per-domain trust table applied to citations.
type SourceWeightsConfig struct {
	Default float64            `yaml:"default"` // Weight for domains not in the table
	Domains map[string]float64 `yaml:"domains"`
}

// Weight returns the configured trust weight for a host, falling back to the
// default for unknown domains. Subdomains inherit their parent's weight.
func (s *SourceWeightsConfig) Weight(host string) float64 {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if w, exists := s.Domains[host]; exists {
		return w
	}
	// Walk up: wiki.archlinux.org matches archlinux.org.
	for {
		idx := strings.Index(host, ".")
		if idx < 0 {
			break
		}
		host = host[idx+1:]
		if w, exists := s.Domains[host]; exists {
			return w
		}
	}
	return s.Default
}

// UsageConfig locates the durable usage sink.
type UsageConfig struct {
	DBPath string `yaml:"db_path"` // SQLite database path, empty disables persistence
}

// EventLogConfig locates the replayable event log.
type EventLogConfig struct {
	Dir string `yaml:"dir"` // JSONL log directory, empty disables the log
}

// Config is the root configuration for the orchestration pipeline.
type Config struct {
	Resilience           ResilienceConfig    `yaml:"resilience"`
	Strategies           StrategyConfig      `yaml:"strategies"`
	Models               ModelsConfig        `yaml:"models"`
	SourceWeights        SourceWeightsConfig `yaml:"source_weights"`
	Usage                UsageConfig         `yaml:"usage"`
	EventLog             EventLogConfig      `yaml:"event_log"`
	EnableDegradation    bool                `yaml:"enable_degradation"`
	EnableModelSelection bool                `yaml:"enable_model_selection"`
	StreamBuffer         int                 `yaml:"stream_buffer"` // Event stream channel capacity
}

// Default returns the baseline configuration. File and env values layer on
// top of this.
func Default() Config {
	return Config{
		Resilience: ResilienceConfig{
			FailureThreshold: 5,
			ResetTimeout:     60 * time.Second,
			MaxRetries:       2,
			RetryDelay:       1 * time.Second,
			AgentTimeout:     120 * time.Second,
		},
		Strategies: StrategyConfig{
			QuickMaxResults:    3,
			DeepMaxResults:     8,
			AdaptiveMaxResults: 5,
			SubResearchBudget:  1,
		},
		Models: ModelsConfig{
			Default:   ModelClaudeSonnet,
			Fast:      ModelClaudeHaiku,
			Strong:    ModelClaudeSonnet,
			OllamaURL: "http://localhost:11434",
		},
		SourceWeights: SourceWeightsConfig{
			Default: 0.5,
			Domains: map[string]float64{
				"kernel.org":         1.0,
				"archlinux.org":      0.95,
				"debian.org":         0.95,
				"wiki.archlinux.org": 0.95,
				"man7.org":           0.95,
				"freedesktop.org":    0.9,
				"stackexchange.com":  0.75,
				"stackoverflow.com":  0.75,
				"askubuntu.com":      0.7,
				"reddit.com":         0.4,
			},
		},
		Usage:                UsageConfig{DBPath: ""},
		EventLog:             EventLogConfig{Dir: ""},
		EnableDegradation:    true,
		EnableModelSelection: false,
		StreamBuffer:         256,
	}
}

// Validate rejects configurations the pipeline cannot safely run with.
func (c *Config) Validate() error {
	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("resilience.failure_threshold must be >= 1, got %d", c.Resilience.FailureThreshold)
	}
	if c.Resilience.ResetTimeout <= 0 {
		return fmt.Errorf("resilience.reset_timeout must be positive, got %v", c.Resilience.ResetTimeout)
	}
	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("resilience.max_retries must be >= 0, got %d", c.Resilience.MaxRetries)
	}
	if c.Resilience.AgentTimeout <= 0 {
		return fmt.Errorf("resilience.agent_timeout must be positive, got %v", c.Resilience.AgentTimeout)
	}
	if c.Strategies.QuickMaxResults < 1 || c.Strategies.DeepMaxResults < 1 || c.Strategies.AdaptiveMaxResults < 1 {
		return fmt.Errorf("strategy result caps must be >= 1")
	}
	if c.Strategies.SubResearchBudget < 0 {
		return fmt.Errorf("strategies.sub_research_budget must be >= 0, got %d", c.Strategies.SubResearchBudget)
	}
	if c.SourceWeights.Default < 0 || c.SourceWeights.Default > 1 {
		return fmt.Errorf("source_weights.default must be in [0,1], got %f", c.SourceWeights.Default)
	}
	for domain, w := range c.SourceWeights.Domains {
		if w < 0 || w > 1 {
			return fmt.Errorf("source weight for %s must be in [0,1], got %f", domain, w)
		}
	}
	if c.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	if c.StreamBuffer < 1 {
		return fmt.Errorf("stream_buffer must be >= 1, got %d", c.StreamBuffer)
	}
	return nil
}

// ModelFor returns the model serving the given stage kind under the current
// selection policy.
func (c *Config) ModelFor(agentType proto.AgentType) string {
	if !c.EnableModelSelection {
		return c.Models.Default
	}
	switch agentType {
	case proto.AgentResearch, proto.AgentCurious:
		if c.Models.Fast != "" {
			return c.Models.Fast
		}
	case proto.AgentPlanner, proto.AgentValidator, proto.AgentSynthesizer:
		if c.Models.Strong != "" {
			return c.Models.Strong
		}
	}
	return c.Models.Default
}
