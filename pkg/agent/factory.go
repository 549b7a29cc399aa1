// Package agent provides LLM client construction for pipeline stages.
package agent

import (
	"fmt"
	"sync"

	"tuxpilot/pkg/agent/llm"
	"tuxpilot/pkg/agent/llmimpl/anthropic"
	"tuxpilot/pkg/agent/llmimpl/google"
	"tuxpilot/pkg/agent/llmimpl/ollama"
	"tuxpilot/pkg/agent/llmimpl/openai"
	"tuxpilot/pkg/config"
	"tuxpilot/pkg/proto"
)

// API key secret names by provider.
var apiKeyNames = map[string]string{
	config.ProviderAnthropic: "ANTHROPIC_API_KEY",
	config.ProviderOpenAI:    "OPENAI_API_KEY",
	config.ProviderGoogle:    "GEMINI_API_KEY",
}

// Factory creates LLM clients for pipeline stages based on the model
// selection policy. Clients are cached per model.
type Factory struct {
	mu      sync.Mutex
	cfg     config.Config
	clients map[string]llm.Client
}

// NewFactory creates a client factory for the given configuration.
func NewFactory(cfg config.Config) *Factory {
	return &Factory{
		cfg:     cfg,
		clients: make(map[string]llm.Client),
	}
}

// ClientFor returns the client serving the given stage kind under the
// current model selection policy.
func (f *Factory) ClientFor(agentType proto.AgentType) (llm.Client, error) {
	return f.ClientForModel(f.cfg.ModelFor(agentType))
}

// ClientForModel returns a client for a specific model, creating it on
// first use.
func (f *Factory) ClientForModel(model string) (llm.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if client, exists := f.clients[model]; exists {
		return client, nil
	}

	info := config.LookupModel(model)
	var client llm.Client
	switch info.Provider {
	case config.ProviderOllama:
		client = ollama.NewClient(f.cfg.Models.OllamaURL, model)
	case config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle:
		apiKey, err := config.GetSecret(apiKeyNames[info.Provider])
		if err != nil {
			return nil, fmt.Errorf("no API key for provider %s: %w", info.Provider, err)
		}
		switch info.Provider {
		case config.ProviderAnthropic:
			client = anthropic.NewClient(apiKey, model)
		case config.ProviderOpenAI:
			client = openai.NewClient(apiKey, model)
		case config.ProviderGoogle:
			client = google.NewClient(apiKey, model)
		}
	default:
		return nil, fmt.Errorf("unsupported provider %q for model %s", info.Provider, model)
	}

	f.clients[model] = client
	return client, nil
}
