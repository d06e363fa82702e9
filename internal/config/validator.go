package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates the completion provider name
func (v *Validator) ValidateProvider(provider string) error {
	switch provider {
	case "openai", "anthropic":
		return nil
	}
	return fmt.Errorf("invalid provider %q (must be: openai, anthropic)", provider)
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens < 1 {
		return fmt.Errorf("max tokens must be at least 1, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateAgent validates the loop and vote bounds. A zero step budget is
// accepted: such a run ends immediately without an answer.
func (v *Validator) ValidateAgent(a AgentConfig) []error {
	var errs []error
	if a.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps cannot be negative, got %d", a.MaxSteps))
	}
	if a.Runs < 1 {
		errs = append(errs, fmt.Errorf("agent.runs must be at least 1, got %d", a.Runs))
	}
	if a.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("agent.parallelism cannot be negative, got %d", a.Parallelism))
	}
	if a.RunTimeout < 0 || a.ToolTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent timeouts cannot be negative"))
	}
	if a.ToolTimeout > 0 && a.ToolTimeout < 10*time.Millisecond {
		errs = append(errs, fmt.Errorf("agent.tool_timeout too small: %s", a.ToolTimeout))
	}
	return errs
}

// ValidateSearch validates search tuning
func (v *Validator) ValidateSearch(s SearchConfig) []error {
	var errs []error
	if s.TopK < 1 {
		errs = append(errs, fmt.Errorf("search.top_k must be at least 1, got %d", s.TopK))
	}
	if s.DistanceThreshold < 0 || s.DistanceThreshold > 2 {
		errs = append(errs, fmt.Errorf("search.distance_threshold must be between 0 and 2, got %.2f", s.DistanceThreshold))
	}
	return errs
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil || level == "" {
		return fmt.Errorf("invalid log level: %s (must be: trace, debug, info, warn, error)", level)
	}
	return nil
}

// ValidateConfig validates the entire configuration
func ValidateConfig(cfg *Config) []error {
	v := NewValidator()
	var errs []error

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.APIKey != "" {
		if err := v.ValidateAPIKey(cfg.LLM.APIKey, cfg.LLM.Provider); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("llm.model cannot be empty"))
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errs = append(errs, err)
	}
	if cfg.Embedding.Provider != "openai" && cfg.Embedding.Provider != "hash" {
		errs = append(errs, fmt.Errorf("invalid embedding provider %q (must be: openai, hash)", cfg.Embedding.Provider))
	}
	if cfg.Embedding.Dimension < 1 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be at least 1, got %d", cfg.Embedding.Dimension))
	}

	errs = append(errs, v.ValidateAgent(cfg.Agent)...)
	errs = append(errs, v.ValidateSearch(cfg.Search)...)

	if cfg.Ingest.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("ingest.concurrency must be at least 1, got %d", cfg.Ingest.Concurrency))
	}
	if cfg.Ingest.DateLayout == "" {
		errs = append(errs, fmt.Errorf("ingest.date_layout cannot be empty"))
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be between 0 and 1"))
	}

	return errs
}
