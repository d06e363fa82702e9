package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "FINAGENT"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// newViper binds every known key to its FINAGENT_* variable so env
// overrides work even without a config file.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("llm.provider", def.LLM.Provider)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("llm.temperature", def.LLM.Temperature)
	v.SetDefault("llm.max_tokens", def.LLM.MaxTokens)
	v.SetDefault("embedding.provider", def.Embedding.Provider)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", def.Embedding.Model)
	v.SetDefault("embedding.dimension", def.Embedding.Dimension)
	v.SetDefault("agent.max_steps", def.Agent.MaxSteps)
	v.SetDefault("agent.runs", def.Agent.Runs)
	v.SetDefault("agent.parallelism", def.Agent.Parallelism)
	v.SetDefault("agent.run_timeout", def.Agent.RunTimeout)
	v.SetDefault("agent.tool_timeout", def.Agent.ToolTimeout)
	v.SetDefault("agent.system_prompt", "")
	v.SetDefault("search.top_k", def.Search.TopK)
	v.SetDefault("search.distance_threshold", def.Search.DistanceThreshold)
	v.SetDefault("ingest.concurrency", def.Ingest.Concurrency)
	v.SetDefault("ingest.date_layout", def.Ingest.DateLayout)
	v.SetDefault("ingest.inbox_dir", "")
	v.SetDefault("storage.db_path", "")
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.pretty", def.Logging.Pretty)
	v.SetDefault("logging.redaction", def.Logging.Redaction)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.listen", def.Metrics.Listen)
	v.SetDefault("tracing.enabled", def.Tracing.Enabled)
	v.SetDefault("tracing.sample_ratio", def.Tracing.SampleRatio)
	v.SetDefault("data_dir", "")

	// The conventional OpenAI variable works as a fallback key.
	_ = v.BindEnv("llm.api_key", envPrefix+"_LLM_API_KEY", "OPENAI_API_KEY")

	return v
}

// Load loads the configuration from file and environment
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := newViper()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".finagent")
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = filepath.Join(cfg.DataDir, "finagent.db")
	}
	if cfg.Ingest.InboxDir == "" {
		cfg.Ingest.InboxDir = filepath.Join(cfg.DataDir, "inbox")
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("json")
	v.Set("llm", cfg.LLM)
	v.Set("embedding", cfg.Embedding)
	v.Set("agent", map[string]interface{}{
		"max_steps":     cfg.Agent.MaxSteps,
		"runs":          cfg.Agent.Runs,
		"parallelism":   cfg.Agent.Parallelism,
		"run_timeout":   cfg.Agent.RunTimeout.String(),
		"tool_timeout":  cfg.Agent.ToolTimeout.String(),
		"system_prompt": cfg.Agent.SystemPrompt,
	})
	v.Set("search", cfg.Search)
	v.Set("ingest", cfg.Ingest)
	v.Set("storage", cfg.Storage)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".finagent", "finagent.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
