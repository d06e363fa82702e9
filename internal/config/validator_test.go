package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAPIKey(t *testing.T) {
	v := NewValidator()

	t.Run("valid anthropic key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-abc", "anthropic"))
	})

	t.Run("invalid anthropic key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("sk-abc", "anthropic"))
	})

	t.Run("valid openai key", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-abc", "openai"))
	})

	t.Run("empty key", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "openai"))
	})
}

func TestValidateAgent(t *testing.T) {
	v := NewValidator()

	assert.Empty(t, v.ValidateAgent(DefaultConfig().Agent))

	a := DefaultConfig().Agent
	a.MaxSteps = 0
	assert.Empty(t, v.ValidateAgent(a), "zero budget is allowed")

	a.MaxSteps = -1
	a.Runs = 0
	assert.Len(t, v.ValidateAgent(a), 2)
}

func TestValidateSearch(t *testing.T) {
	v := NewValidator()

	assert.Empty(t, v.ValidateSearch(SearchConfig{TopK: 10, DistanceThreshold: 0.5}))
	assert.Len(t, v.ValidateSearch(SearchConfig{TopK: 0, DistanceThreshold: 3}), 2)
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, lvl := range []string{"trace", "debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(lvl), lvl)
	}
	assert.Error(t, v.ValidateLogLevel("loud"))
	assert.Error(t, v.ValidateLogLevel(""))
}

func TestValidateConfigCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "nope"
	cfg.LLM.Temperature = 5
	cfg.Ingest.Concurrency = 0

	errs := ValidateConfig(cfg)
	assert.Len(t, errs, 3)
}
