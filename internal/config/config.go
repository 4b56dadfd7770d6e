package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	DBPath    string          `yaml:"db_path"`
	TracePath string          `yaml:"trace_path,omitempty"`
	Matching  MatchingConfig  `yaml:"matching"`
	Planner   PlannerConfig   `yaml:"planner"`
	Scope     ScopeConfig     `yaml:"scope"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// MatchingConfig holds every weight and threshold the action matcher uses.
// It travels through the pipeline as one structure so values are never
// re-derived per call.
type MatchingConfig struct {
	TopK              int     `yaml:"top_k"`
	MinSimilarity     float64 `yaml:"min_similarity"`
	AllowFallback     bool    `yaml:"allow_fallback"`
	AliasWeight       float64 `yaml:"alias_weight"`
	BaseWeight        float64 `yaml:"base_weight"`
	ParamWeight       float64 `yaml:"param_weight"`
	MinParamScore     float64 `yaml:"min_param_score"`
	MinFinalScore     float64 `yaml:"min_final_score"`
	EnableParamGate   bool    `yaml:"enable_param_gate"`
	EnumMismatchScore float64 `yaml:"enum_mismatch_score"`
}

// PlannerConfig controls recursive decomposition.
type PlannerConfig struct {
	MaxDepth      int `yaml:"max_depth"`
	PacingDelayMs int `yaml:"pacing_delay_ms"`
	MatchWorkers  int `yaml:"match_workers"`
}

// ScopeConfig controls the capability-scope check. Strict decides whether a
// failing scope call aborts the request or lets it proceed.
type ScopeConfig struct {
	Enabled bool `yaml:"enabled"`
	Strict  bool `yaml:"strict"`
}

// LLMConfig configures the reasoning-service client.
type LLMConfig struct {
	Endpoint       string      `yaml:"endpoint"`
	Model          string      `yaml:"model"`
	APIKey         string      `yaml:"api_key,omitempty"`
	OAuth          OAuthConfig `yaml:"oauth,omitempty"`
	TimeoutSeconds int         `yaml:"timeout_seconds"`
	MaxRetries     int         `yaml:"max_retries"`
}

// OAuthConfig enables client-credentials auth against the reasoning service.
type OAuthConfig struct {
	TokenURL     string   `yaml:"token_url,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// EmbeddingConfig configures the local embedding engine.
type EmbeddingConfig struct {
	ModelDir string `yaml:"model_dir"`
}

// Default returns the default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DBPath:    filepath.Join(homeDir, ".planpilot", "planpilot.db"),
		TracePath: filepath.Join(homeDir, ".planpilot", "trace.json"),
		Matching: MatchingConfig{
			TopK:              10,
			MinSimilarity:     0.75,
			AllowFallback:     true,
			AliasWeight:       0.15,
			BaseWeight:        0.4,
			ParamWeight:       0.6,
			MinParamScore:     0.35,
			MinFinalScore:     0.55,
			EnableParamGate:   true,
			EnumMismatchScore: 0.0,
		},
		Planner: PlannerConfig{
			MaxDepth:      4,
			PacingDelayMs: 100,
			MatchWorkers:  4,
		},
		Scope: ScopeConfig{
			Enabled: false,
			Strict:  true,
		},
		LLM: LLMConfig{
			Endpoint:       "http://localhost:11434/v1",
			Model:          "llama3.1",
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Embedding: EmbeddingConfig{
			ModelDir: filepath.Join(homeDir, ".planpilot", "models"),
		},
	}
}

// Load reads configuration from file, creating with defaults if it doesn't exist
func Load(path string) (*Config, error) {
	// If file doesn't exist, create it with defaults
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	// Read existing file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default() // Start with defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".planpilot", "config.yaml")
}
