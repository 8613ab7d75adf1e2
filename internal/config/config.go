// Package config loads process configuration from the environment, with an
// optional YAML policy file for consensus expertise weights.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds everything the server needs at startup. Field effects are
// binding; names mirror the environment variables that set them.
type Config struct {
	// Language-model client
	LMCEndpoint string
	LMCAPIKey   string
	LMCModel    string

	// Knowledge retriever
	KREndpoint string

	// Registry
	RegistryStoreURL  string
	RegistryKeyPrefix string
	AgentTTL          time.Duration
	RegistryCacheTTL  time.Duration

	// Coordinator
	EADeadline          time.Duration
	CoordinatorDeadline time.Duration
	MaxParallelAgents   int
	MaxInflightAgents   int

	// Process
	ListenAddr     string
	APIKey         string // inbound auth on mutating registry endpoints
	LogLevel       string
	MetricsEnabled bool
	MetricsPort    int
	TracingEnabled bool
	OTLPEndpoint   string

	// Consensus policy
	ExpertiseWeightsFile string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LMC_MODEL", "gpt-4o-mini")
	v.SetDefault("REGISTRY_STORE_URL", "")
	v.SetDefault("REGISTRY_KEY_PREFIX", "murshid:")
	v.SetDefault("AGENT_TTL_SECONDS", 3600)
	v.SetDefault("REGISTRY_CACHE_TTL_SECONDS", 300)
	v.SetDefault("EA_DEADLINE_SECONDS", 30)
	v.SetDefault("COORDINATOR_DEADLINE_SECONDS", 60)
	v.SetDefault("MAX_PARALLEL_AGENTS", 8)
	v.SetDefault("MAX_INFLIGHT_AGENTS", 64)
	v.SetDefault("LISTEN_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("METRICS_PORT", 0)
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("OTLP_ENDPOINT", "")

	cfg := &Config{
		LMCEndpoint:          v.GetString("LMC_ENDPOINT"),
		LMCAPIKey:            v.GetString("LMC_API_KEY"),
		LMCModel:             v.GetString("LMC_MODEL"),
		KREndpoint:           v.GetString("KR_ENDPOINT"),
		RegistryStoreURL:     v.GetString("REGISTRY_STORE_URL"),
		RegistryKeyPrefix:    v.GetString("REGISTRY_KEY_PREFIX"),
		AgentTTL:             time.Duration(v.GetInt("AGENT_TTL_SECONDS")) * time.Second,
		RegistryCacheTTL:     time.Duration(v.GetInt("REGISTRY_CACHE_TTL_SECONDS")) * time.Second,
		EADeadline:           time.Duration(v.GetInt("EA_DEADLINE_SECONDS")) * time.Second,
		CoordinatorDeadline:  time.Duration(v.GetInt("COORDINATOR_DEADLINE_SECONDS")) * time.Second,
		MaxParallelAgents:    v.GetInt("MAX_PARALLEL_AGENTS"),
		MaxInflightAgents:    v.GetInt("MAX_INFLIGHT_AGENTS"),
		ListenAddr:           v.GetString("LISTEN_ADDR"),
		APIKey:               v.GetString("API_KEY"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		MetricsEnabled:       v.GetBool("METRICS_ENABLED"),
		MetricsPort:          v.GetInt("METRICS_PORT"),
		TracingEnabled:       v.GetBool("TRACING_ENABLED"),
		OTLPEndpoint:         v.GetString("OTLP_ENDPOINT"),
		ExpertiseWeightsFile: v.GetString("EXPERTISE_WEIGHTS_FILE"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AgentTTL <= 0 {
		return fmt.Errorf("AGENT_TTL_SECONDS must be positive")
	}
	if c.MaxParallelAgents <= 0 {
		return fmt.Errorf("MAX_PARALLEL_AGENTS must be positive")
	}
	if c.MaxInflightAgents < c.MaxParallelAgents {
		return fmt.Errorf("MAX_INFLIGHT_AGENTS must be at least MAX_PARALLEL_AGENTS")
	}
	if c.EADeadline <= 0 || c.CoordinatorDeadline <= 0 {
		return fmt.Errorf("deadlines must be positive")
	}
	return nil
}

// expertiseWeightsFile is the YAML shape of the weights policy file.
type expertiseWeightsFile struct {
	Weights map[string]float64 `yaml:"expertise_weights"`
}

// LoadExpertiseWeights reads the per-role expertise weight table. A missing
// path yields an empty table, which the consensus engine treats as 1.0
// everywhere; the weights are policy, not code.
func LoadExpertiseWeights(path string) (map[string]float64, error) {
	if path == "" {
		return map[string]float64{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expertise weights: %w", err)
	}
	var parsed expertiseWeightsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse expertise weights: %w", err)
	}
	for role, w := range parsed.Weights {
		if w <= 0 {
			return nil, fmt.Errorf("expertise weight for %q must be positive, got %g", role, w)
		}
	}
	if parsed.Weights == nil {
		parsed.Weights = map[string]float64{}
	}
	return parsed.Weights, nil
}
