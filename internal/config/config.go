package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/trialfit/internal/domain/trial"
)

// Config holds the trialfit configuration.
type Config struct {
	HTTP        HTTPConfig        `yaml:"http"`
	Auth        AuthConfig        `yaml:"auth"`
	Logging     LoggingConfig     `yaml:"logging"`
	LLM         LLMConfig         `yaml:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Cache       CacheConfig       `yaml:"cache"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Feasibility FeasibilityConfig `yaml:"feasibility"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ResilienceConfig holds retry, rate limit and circuit breaker settings of a provider.
type ResilienceConfig struct {
	MaxAttempts        int     `yaml:"max_attempts"`
	InitialIntervalMs  int     `yaml:"initial_interval_ms"`
	MaxIntervalMs      int     `yaml:"max_interval_ms"`
	AttemptTimeoutSec  int     `yaml:"attempt_timeout_sec"`
	RateLimit          float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
	Burst              int     `yaml:"burst"`
	BreakerFailures    uint32  `yaml:"breaker_failures"`
	BreakerCooldownSec int     `yaml:"breaker_cooldown_sec"`
}

// LLMConfig holds language-model provider settings.
type LLMConfig struct {
	Provider    string           `yaml:"provider"` // openai, anthropic
	Model       string           `yaml:"model"`
	APIKey      string           `yaml:"api_key"`
	BaseURL     string           `yaml:"base_url"`
	MaxTokens   int              `yaml:"max_tokens"`
	Temperature float64          `yaml:"temperature"`
	Resilience  ResilienceConfig `yaml:"resilience"`
	Budget      BudgetConfig     `yaml:"budget"`
}

// BudgetConfig holds language-model token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// Enabled reports whether any limit is configured.
func (b BudgetConfig) Enabled() bool {
	return b.DailyTokenLimit > 0 || b.MonthlyTokenLimit > 0
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string           `yaml:"provider"` // openai, local
	Model               string           `yaml:"model"`
	Dimensions          int              `yaml:"dimensions"`
	APIKey              string           `yaml:"api_key"`
	BaseURL             string           `yaml:"base_url"`
	DocumentInstruction string           `yaml:"document_instruction"`
	QueryInstruction    string           `yaml:"query_instruction"`
	Resilience          ResilienceConfig `yaml:"resilience"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // none, memory, redis (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	LRUSize          int      `yaml:"lru_size"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = keep until evicted
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CorpusConfig holds the historical corpus source.
type CorpusConfig struct {
	Source string `yaml:"source"` // jsonl, sqlite
	Path   string `yaml:"path"`
}

// ExtractionConfig holds extraction settings.
type ExtractionConfig struct {
	ChunkChars   int `yaml:"chunk_chars"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	Concurrency  int `yaml:"concurrency"`
	TimeoutSec   int `yaml:"timeout_sec"`
}

// RetrievalConfig holds comparator retrieval settings.
type RetrievalConfig struct {
	K                int      `yaml:"k"`
	OversampleFactor int      `yaml:"oversample_factor"`
	MinSimilarity    *float64 `yaml:"min_similarity"` // zero or negative disables the floor
	TimeoutSec       int      `yaml:"timeout_sec"`
}

// TierConfig gates a confidence tier.
type TierConfig struct {
	MinComparators  int     `yaml:"min_comparators"`
	SimilarityFloor float64 `yaml:"similarity_floor"`
}

// PriorConfig is the fallback estimate and valid range of a metric.
type PriorConfig struct {
	Point float64 `yaml:"point"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
}

// FeasibilityConfig holds estimator settings. Zero values keep the built-in defaults.
type FeasibilityConfig struct {
	Z                     float64                `yaml:"z"`
	PriorVarianceFraction float64                `yaml:"prior_variance_fraction"`
	High                  TierConfig             `yaml:"high"`
	Medium                TierConfig             `yaml:"medium"`
	Priors                map[string]PriorConfig `yaml:"priors"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// a full pipeline run calls the model once per window
		c.HTTP.WriteTimeoutSec = 180
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 256
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.LRUSize <= 0 {
		c.Cache.LRUSize = 10000
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Corpus.Source == "" {
		c.Corpus.Source = "jsonl"
	}
	if c.Extraction.ChunkChars <= 0 {
		c.Extraction.ChunkChars = 2200
	}
	if c.Extraction.ChunkOverlap <= 0 {
		c.Extraction.ChunkOverlap = 200
	}
	if c.Extraction.Concurrency <= 0 {
		c.Extraction.Concurrency = 4
	}
	if c.Extraction.TimeoutSec <= 0 {
		c.Extraction.TimeoutSec = 120
	}
	if c.Retrieval.K <= 0 {
		c.Retrieval.K = 10
	}
	if c.Retrieval.OversampleFactor <= 0 {
		c.Retrieval.OversampleFactor = 2
	}
	if c.Retrieval.MinSimilarity == nil {
		floor := 0.2
		c.Retrieval.MinSimilarity = &floor
	}
	if c.Retrieval.TimeoutSec <= 0 {
		c.Retrieval.TimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.Budget.DailyTokenLimit < 0 || c.LLM.Budget.MonthlyTokenLimit < 0 {
		return fmt.Errorf("llm.budget limits must be >= 0")
	}
	switch c.LLM.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf("llm.budget.action must be \"warn\" or \"reject\", got %q", c.LLM.Budget.Action)
	}
	switch c.Embedding.Provider {
	case "local":
	case "openai":
		if c.Embedding.Model == "" {
			return fmt.Errorf("embedding.model is required for provider openai")
		}
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"local\", got %q", c.Embedding.Provider)
	}
	switch c.Cache.Driver {
	case "none", "memory":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver redis")
		}
	default:
		return fmt.Errorf("cache.driver must be \"none\", \"memory\" or \"redis\", got %q", c.Cache.Driver)
	}
	switch c.Corpus.Source {
	case "jsonl", "sqlite":
	default:
		return fmt.Errorf("corpus.source must be \"jsonl\" or \"sqlite\", got %q", c.Corpus.Source)
	}
	if c.Corpus.Path == "" {
		return fmt.Errorf("corpus.path is required")
	}
	if c.Extraction.ChunkOverlap >= c.Extraction.ChunkChars {
		return fmt.Errorf(
			"extraction.chunk_overlap (%d) must be smaller than extraction.chunk_chars (%d)",
			c.Extraction.ChunkOverlap, c.Extraction.ChunkChars,
		)
	}
	if c.Retrieval.MinSimilarity != nil && *c.Retrieval.MinSimilarity > 1 {
		return fmt.Errorf("retrieval.min_similarity must be at most 1, got %g", *c.Retrieval.MinSimilarity)
	}
	for name, p := range c.Feasibility.Priors {
		if _, err := trial.ParseMetric(name); err != nil {
			return fmt.Errorf("feasibility.priors: %w", err)
		}
		if p.Min >= p.Max || p.Point < p.Min || p.Point > p.Max {
			return fmt.Errorf("feasibility.priors.%s: need min < max and point within range", name)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
