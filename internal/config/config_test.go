package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Agent.MaxSteps)
	assert.Equal(t, 5, cfg.Agent.Runs)
	assert.Equal(t, 100, cfg.Search.TopK)
	assert.Equal(t, 0.5, cfg.Search.DistanceThreshold)
	assert.Equal(t, 30*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, "01/02/2006", cfg.Ingest.DateLayout)
	assert.Empty(t, ValidateConfig(cfg))
}

func TestConfigStringMasksKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-secret-value"
	cfg.Embedding.APIKey = "sk-other"

	out := cfg.String()
	assert.NotContains(t, out, "sk-secret-value")
	assert.NotContains(t, out, "sk-other")
	assert.Contains(t, out, "***")
	// original untouched
	assert.Equal(t, "sk-secret-value", cfg.LLM.APIKey)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DBPath = "/tmp/x.db"
	assert.Error(t, cfg.Validate(), "missing api key")

	cfg.LLM.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "gemini"
	assert.Error(t, cfg.Validate())
}

func TestEmbeddingKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "sk-llm"
	assert.Equal(t, "sk-llm", cfg.EmbeddingKey())

	cfg.LLM.Provider = "anthropic"
	assert.Empty(t, cfg.EmbeddingKey())

	cfg.Embedding.APIKey = "sk-embed"
	assert.Equal(t, "sk-embed", cfg.EmbeddingKey())
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Agent.MaxSteps)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "finagent.db"), cfg.Storage.DBPath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "inbox"), cfg.Ingest.InboxDir)
}

func TestLoaderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "finagent.json")
	body := `{
		"llm": {"provider": "anthropic", "model": "claude-sonnet-4", "api_key": "sk-ant-x"},
		"agent": {"max_steps": 3, "runs": 7, "tool_timeout": "5s"},
		"search": {"distance_threshold": 0.25},
		"data_dir": "` + filepath.ToSlash(dir) + `"
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet-4", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.Agent.MaxSteps)
	assert.Equal(t, 7, cfg.Agent.Runs)
	assert.Equal(t, 5*time.Second, cfg.Agent.ToolTimeout)
	assert.Equal(t, 0.25, cfg.Search.DistanceThreshold)
	assert.Equal(t, 100, cfg.Search.TopK, "unset keys keep defaults")
	assert.Equal(t, filepath.Join(dir, "finagent.db"), cfg.Storage.DBPath)
}

func TestLoaderEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FINAGENT_AGENT_RUNS", "9")
	t.Setenv("FINAGENT_LLM_API_KEY", "sk-from-env")
	t.Setenv("FINAGENT_DATA_DIR", dir)

	cfg, err := Load(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Agent.Runs)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoaderRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "finagent.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "finagent.json")

	cfg := DefaultConfig()
	cfg.DataDir = dir
	cfg.Agent.Runs = 3
	cfg.Agent.RunTimeout = 45 * time.Second
	cfg.Search.DistanceThreshold = 0.3

	loader := NewLoader(path)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Agent.Runs)
	assert.Equal(t, 45*time.Second, loaded.Agent.RunTimeout)
	assert.Equal(t, 0.3, loaded.Search.DistanceThreshold)
	assert.Equal(t, dir, loaded.DataDir)
}
