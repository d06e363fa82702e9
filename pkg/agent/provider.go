package agent

import (
	"context"
	"fmt"

	"github.com/harun/finagent/pkg/session"
	"github.com/harun/finagent/pkg/toolexecutor"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call. System messages
// travel inside Messages.
type LLMRequest struct {
	Model       string
	Messages    []session.Message
	Tools       []toolexecutor.ToolSpec
	Temperature float64
	MaxTokens   int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	ToolCalls []session.ToolCall
	Usage     *TokenUsage
}

// ProviderConfig selects and authenticates a provider
type ProviderConfig struct {
	Provider string // "openai", "anthropic"
	APIKey   string
	BaseURL  string
}

// NewProvider creates a new LLM provider
func NewProvider(cfg ProviderConfig) (LLMProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Provider)
	}
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
