package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.LMCModel)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "murshid:", cfg.RegistryKeyPrefix)
	assert.Equal(t, time.Hour, cfg.AgentTTL)
	assert.Equal(t, 5*time.Minute, cfg.RegistryCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.EADeadline)
	assert.Equal(t, time.Minute, cfg.CoordinatorDeadline)
	assert.Equal(t, 8, cfg.MaxParallelAgents)
	assert.Equal(t, 64, cfg.MaxInflightAgents)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LMC_ENDPOINT", "http://localhost:11434/v1")
	t.Setenv("LMC_MODEL", "llama3")
	t.Setenv("AGENT_TTL_SECONDS", "120")
	t.Setenv("MAX_PARALLEL_AGENTS", "2")
	t.Setenv("MAX_INFLIGHT_AGENTS", "4")
	t.Setenv("API_KEY", "hunter2")
	t.Setenv("TRACING_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LMCEndpoint)
	assert.Equal(t, "llama3", cfg.LMCModel)
	assert.Equal(t, 2*time.Minute, cfg.AgentTTL)
	assert.Equal(t, 2, cfg.MaxParallelAgents)
	assert.Equal(t, 4, cfg.MaxInflightAgents)
	assert.Equal(t, "hunter2", cfg.APIKey)
	assert.True(t, cfg.TracingEnabled)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("AGENT_TTL_SECONDS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_TTL_SECONDS")
}

func TestLoadRejectsInflightBelowParallel(t *testing.T) {
	t.Setenv("MAX_PARALLEL_AGENTS", "16")
	t.Setenv("MAX_INFLIGHT_AGENTS", "8")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_INFLIGHT_AGENTS")
}

func TestLoadExpertiseWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"expertise_weights:\n  disease_diagnosis: 1.5\n  irrigation: 0.8\n"), 0o644))

	weights, err := LoadExpertiseWeights(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"disease_diagnosis": 1.5, "irrigation": 0.8}, weights)
}

func TestLoadExpertiseWeightsEmptyPath(t *testing.T) {
	weights, err := LoadExpertiseWeights("")
	require.NoError(t, err)
	assert.Empty(t, weights)
}

func TestLoadExpertiseWeightsRejectsNonPositive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"expertise_weights:\n  irrigation: -1\n"), 0o644))
	_, err := LoadExpertiseWeights(path)
	require.Error(t, err)
}

func TestLoadExpertiseWeightsMissingFile(t *testing.T) {
	_, err := LoadExpertiseWeights(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
