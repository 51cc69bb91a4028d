// Package config handles configuration loading for MacroQuery.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"          yaml:"llm"`
	Providers    ProvidersConfig    `mapstructure:"providers"    yaml:"providers"`
	Cache        CacheConfig        `mapstructure:"cache"        yaml:"cache"`
	Pool         PoolConfig         `mapstructure:"pool"         yaml:"pool"`
	Breaker      BreakerConfig      `mapstructure:"breaker"      yaml:"breaker"`
	Limits       LimitsConfig       `mapstructure:"limits"       yaml:"limits"`
	Router       RouterConfig       `mapstructure:"router"       yaml:"router"`
	Index        IndexConfig        `mapstructure:"index"        yaml:"index"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
}

// LLMConfig holds LLM backend configuration for the intent resolver.
type LLMConfig struct {
	Primary      string  `mapstructure:"primary"       yaml:"primary"` // "openai", "anthropic", "ollama"
	OpenAIKey    string  `mapstructure:"openai_key"    yaml:"openai_key"`
	AnthropicKey string  `mapstructure:"anthropic_key" yaml:"anthropic_key"`
	OllamaURL    string  `mapstructure:"ollama_url"    yaml:"ollama_url"`
	Model        string  `mapstructure:"model"         yaml:"model"`
	Temperature  float64 `mapstructure:"temperature"   yaml:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"    yaml:"max_tokens"`
}

// ProvidersConfig holds per-provider data source credentials. Empty
// means unconfigured; key-gated providers are disabled without one.
type ProvidersConfig struct {
	FREDKey         string `mapstructure:"fred_key"         yaml:"fred_key"`
	ComtradeKey     string `mapstructure:"comtrade_key"     yaml:"comtrade_key"`
	ExchangeRateKey string `mapstructure:"exchangerate_key" yaml:"exchangerate_key"`
	CoinGeckoKey    string `mapstructure:"coingecko_key"    yaml:"coingecko_key"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	MaxEntries       int `mapstructure:"max_entries"        yaml:"max_entries"`
	SweepIntervalSec int `mapstructure:"sweep_interval_sec" yaml:"sweep_interval_sec"`
}

// SweepInterval returns the sweeper cadence as a duration.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// PoolConfig holds shared HTTP client settings.
type PoolConfig struct {
	RequestTimeoutSec int `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec"`
	MaxIdleConns      int `mapstructure:"max_idle_conns"      yaml:"max_idle_conns"`
	MaxPerHost        int `mapstructure:"max_per_host"        yaml:"max_per_host"`
}

// RequestTimeout returns the per-request deadline as a duration.
func (p PoolConfig) RequestTimeout() time.Duration {
	return time.Duration(p.RequestTimeoutSec) * time.Second
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold" yaml:"failure_threshold"`
	OpenTimeoutSec   int `mapstructure:"open_timeout_sec"  yaml:"open_timeout_sec"`
	HalfOpenMax      int `mapstructure:"half_open_max"     yaml:"half_open_max"`
}

// OpenTimeout returns how long a breaker stays open as a duration.
func (b BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(b.OpenTimeoutSec) * time.Second
}

// LimitsConfig holds outbound per-provider rate limits.
type LimitsConfig struct {
	PerSecond float64            `mapstructure:"per_second" yaml:"per_second"`
	Burst     int                `mapstructure:"burst"      yaml:"burst"`
	Overrides map[string]float64 `mapstructure:"overrides"  yaml:"overrides"`
}

// RouterConfig holds routing policy settings.
type RouterConfig struct {
	ScarceRequiresExplicit bool `mapstructure:"scarce_requires_explicit" yaml:"scarce_requires_explicit"`
}

// IndexConfig holds indicator index settings.
type IndexConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// OrchestratorConfig holds query pipeline settings.
type OrchestratorConfig struct {
	TotalBudgetSec int `mapstructure:"total_budget_sec" yaml:"total_budget_sec"`
	CandidateLimit int `mapstructure:"candidate_limit"  yaml:"candidate_limit"`
	MaxConcurrent  int `mapstructure:"max_concurrent"   yaml:"max_concurrent"`
}

// TotalBudget returns the whole-query deadline as a duration.
func (o OrchestratorConfig) TotalBudget() time.Duration {
	return time.Duration(o.TotalBudgetSec) * time.Second
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string   `mapstructure:"host"             yaml:"host"`
	Port           int      `mapstructure:"port"             yaml:"port"`
	CORSOrigins    []string `mapstructure:"cors_origins"     yaml:"cors_origins"`
	QueryPerMinute int      `mapstructure:"query_per_minute" yaml:"query_per_minute"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.macroquery/config.yaml (home directory)
//  3. /etc/macroquery/config.yaml (system)
//
// Environment variables override config file values.
// Format: MACROQUERY_<SECTION>_<KEY>, e.g., MACROQUERY_LLM_OPENAI_KEY
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".macroquery"))
	v.AddConfigPath("/etc/macroquery")

	v.SetEnvPrefix("MACROQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("MACROQUERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "openai")
	v.SetDefault("llm.ollama_url", "http://localhost:11434")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1024)

	// Cache defaults
	v.SetDefault("cache.max_entries", 4096)
	v.SetDefault("cache.sweep_interval_sec", 300)

	// Pool defaults
	v.SetDefault("pool.request_timeout_sec", 30)
	v.SetDefault("pool.max_idle_conns", 64)
	v.SetDefault("pool.max_per_host", 8)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.open_timeout_sec", 60)
	v.SetDefault("breaker.half_open_max", 2)

	// Outbound rate limit defaults
	v.SetDefault("limits.per_second", 4.0)
	v.SetDefault("limits.burst", 4)

	// Router defaults
	v.SetDefault("router.scarce_requires_explicit", true)

	// Index defaults
	v.SetDefault("index.path", "./data/indicators.db")

	// Orchestrator defaults
	v.SetDefault("orchestrator.total_budget_sec", 90)
	v.SetDefault("orchestrator.candidate_limit", 5)
	v.SetDefault("orchestrator.max_concurrent", 8)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.query_per_minute", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("MACROQUERY_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	if key := os.Getenv("MACROQUERY_LLM_ANTHROPIC_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	if key := os.Getenv("MACROQUERY_PROVIDERS_FRED_KEY"); key != "" {
		cfg.Providers.FREDKey = key
	}
	if key := os.Getenv("MACROQUERY_PROVIDERS_COMTRADE_KEY"); key != "" {
		cfg.Providers.ComtradeKey = key
	}
	if key := os.Getenv("MACROQUERY_PROVIDERS_EXCHANGERATE_KEY"); key != "" {
		cfg.Providers.ExchangeRateKey = key
	}
	if key := os.Getenv("MACROQUERY_PROVIDERS_COINGECKO_KEY"); key != "" {
		cfg.Providers.CoinGeckoKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
