package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main finagent configuration
type Config struct {
	// Chat/tool-calling model
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Embedding model used by the transaction index
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Agent loop and consensus
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Transaction search tool
	Search SearchConfig `json:"search" mapstructure:"search"`

	// CSV ingestion
	Ingest IngestConfig `json:"ingest" mapstructure:"ingest"`

	// SQLite storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// OpenTelemetry
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig selects the completion provider
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// EmbeddingConfig selects the embedding model
type EmbeddingConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // openai, hash
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	BaseURL   string `json:"base_url" mapstructure:"base_url"`
	Model     string `json:"model" mapstructure:"model"`
	Dimension int    `json:"dimension" mapstructure:"dimension"`
}

// AgentConfig bounds a single run and the vote around it
type AgentConfig struct {
	MaxSteps     int           `json:"max_steps" mapstructure:"max_steps"`
	Runs         int           `json:"runs" mapstructure:"runs"`
	Parallelism  int           `json:"parallelism" mapstructure:"parallelism"`
	RunTimeout   time.Duration `json:"run_timeout" mapstructure:"run_timeout"`
	ToolTimeout  time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
	SystemPrompt string        `json:"system_prompt" mapstructure:"system_prompt"`
}

// SearchConfig tunes the search_transactions tool
type SearchConfig struct {
	TopK              int     `json:"top_k" mapstructure:"top_k"`
	DistanceThreshold float64 `json:"distance_threshold" mapstructure:"distance_threshold"`
}

// IngestConfig tunes CSV ingestion
type IngestConfig struct {
	Concurrency int    `json:"concurrency" mapstructure:"concurrency"`
	DateLayout  string `json:"date_layout" mapstructure:"date_layout"`
	InboxDir    string `json:"inbox_dir" mapstructure:"inbox_dir"`
}

// StorageConfig locates the SQLite database
type StorageConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the optional Prometheus listener
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   2000,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Agent: AgentConfig{
			MaxSteps:    5,
			Runs:        5,
			RunTimeout:  2 * time.Minute,
			ToolTimeout: 30 * time.Second,
		},
		Search: SearchConfig{
			TopK:              100,
			DistanceThreshold: 0.5,
		},
		Ingest: IngestConfig{
			Concurrency: 4,
			DateLayout:  "01/02/2006",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.LLM.APIKey != "" {
		masked.LLM.APIKey = "***"
	}
	if masked.Embedding.APIKey != "" {
		masked.Embedding.APIKey = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks the settings required to answer questions
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("invalid llm provider %q (must be: openai, anthropic)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	return nil
}

// EmbeddingKey returns the embedding API key, falling back to the LLM key
// when both talk to OpenAI.
func (c *Config) EmbeddingKey() string {
	if c.Embedding.APIKey != "" {
		return c.Embedding.APIKey
	}
	if c.LLM.Provider == "openai" {
		return c.LLM.APIKey
	}
	return ""
}
