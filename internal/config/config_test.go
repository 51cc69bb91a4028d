package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, e := range []string{
		"MACROQUERY_LLM_OPENAI_KEY", "MACROQUERY_LLM_ANTHROPIC_KEY",
		"MACROQUERY_PROVIDERS_FRED_KEY", "MACROQUERY_PROVIDERS_COMTRADE_KEY",
		"MACROQUERY_PROVIDERS_EXCHANGERATE_KEY", "MACROQUERY_PROVIDERS_COINGECKO_KEY",
	} {
		os.Unsetenv(e)
	}
}

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.LLM.Primary != "openai" {
		t.Errorf("LLM.Primary: got %q, want %q", cfg.LLM.Primary, "openai")
	}
	if cfg.LLM.OllamaURL != "http://localhost:11434" {
		t.Errorf("LLM.OllamaURL: got %q", cfg.LLM.OllamaURL)
	}
	if cfg.LLM.MaxTokens != 1024 {
		t.Errorf("LLM.MaxTokens: got %d, want 1024", cfg.LLM.MaxTokens)
	}

	if cfg.Cache.MaxEntries != 4096 {
		t.Errorf("Cache.MaxEntries: got %d, want 4096", cfg.Cache.MaxEntries)
	}
	if cfg.Pool.RequestTimeoutSec != 30 {
		t.Errorf("Pool.RequestTimeoutSec: got %d, want 30", cfg.Pool.RequestTimeoutSec)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("Breaker.FailureThreshold: got %d, want 5", cfg.Breaker.FailureThreshold)
	}
	if cfg.Limits.PerSecond != 4.0 {
		t.Errorf("Limits.PerSecond: got %f, want 4.0", cfg.Limits.PerSecond)
	}
	if !cfg.Router.ScarceRequiresExplicit {
		t.Error("Router.ScarceRequiresExplicit should default to true")
	}
	if cfg.Orchestrator.TotalBudgetSec != 90 {
		t.Errorf("Orchestrator.TotalBudgetSec: got %d, want 90", cfg.Orchestrator.TotalBudgetSec)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port: got %d, want 8080", cfg.API.Port)
	}
	if cfg.API.QueryPerMinute != 60 {
		t.Errorf("API.QueryPerMinute: got %d, want 60", cfg.API.QueryPerMinute)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{
		Cache:        CacheConfig{SweepIntervalSec: 300},
		Pool:         PoolConfig{RequestTimeoutSec: 30},
		Breaker:      BreakerConfig{OpenTimeoutSec: 60},
		Orchestrator: OrchestratorConfig{TotalBudgetSec: 90},
	}
	if got := cfg.Cache.SweepInterval().Seconds(); got != 300 {
		t.Errorf("SweepInterval: got %fs", got)
	}
	if got := cfg.Pool.RequestTimeout().Seconds(); got != 30 {
		t.Errorf("RequestTimeout: got %fs", got)
	}
	if got := cfg.Breaker.OpenTimeout().Seconds(); got != 60 {
		t.Errorf("OpenTimeout: got %fs", got)
	}
	if got := cfg.Orchestrator.TotalBudget().Seconds(); got != 90 {
		t.Errorf("TotalBudget: got %fs", got)
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  primary: ollama
  model: llama3
providers:
  fred_key: fred-file-key
router:
  scarce_requires_explicit: false
api:
  port: 9090
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.LLM.Primary != "ollama" || cfg.LLM.Model != "llama3" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Providers.FREDKey != "fred-file-key" {
		t.Errorf("Providers.FREDKey: got %q", cfg.Providers.FREDKey)
	}
	if cfg.Router.ScarceRequiresExplicit {
		t.Error("file value must override router default")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port: got %d, want 9090", cfg.API.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Cache.MaxEntries != 4096 {
		t.Errorf("Cache.MaxEntries: got %d, want default", cfg.Cache.MaxEntries)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("LoadFromFile should fail for a missing file")
	}
}

// ── overrideFromEnv ──

func TestEnvOverridesSecrets(t *testing.T) {
	clearEnv(t)
	t.Setenv("MACROQUERY_LLM_OPENAI_KEY", "sk-test-openai-key-123456")
	t.Setenv("MACROQUERY_PROVIDERS_FRED_KEY", "fred-env-key")
	t.Setenv("MACROQUERY_PROVIDERS_COMTRADE_KEY", "comtrade-env-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LLM.OpenAIKey != "sk-test-openai-key-123456" {
		t.Errorf("LLM.OpenAIKey: got %q", cfg.LLM.OpenAIKey)
	}
	if cfg.Providers.FREDKey != "fred-env-key" {
		t.Errorf("Providers.FREDKey: got %q", cfg.Providers.FREDKey)
	}
	if cfg.Providers.ComtradeKey != "comtrade-env-key" {
		t.Errorf("Providers.ComtradeKey: got %q", cfg.Providers.ComtradeKey)
	}
}

// ── maskKey ──

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"12345678", "***"},
		{"sk-abcdefghijklmnop", "sk-...nop"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

// ── CheckAPIKeys / checkKey ──

func TestCheckAPIKeys(t *testing.T) {
	clearEnv(t)

	cfg := &Config{}
	cfg.LLM.OpenAIKey = "sk-from-config-file-value"

	statuses := CheckAPIKeys(cfg)
	if len(statuses) != 6 {
		t.Fatalf("got %d key statuses, want 6", len(statuses))
	}

	byName := make(map[string]KeyStatus)
	for _, s := range statuses {
		byName[s.Name] = s
	}

	openai := byName["OpenAI API Key"]
	if !openai.IsSet || openai.Source != KeySourceConfig {
		t.Errorf("OpenAI status = %+v", openai)
	}
	if openai.Masked == "" || openai.Masked == cfg.LLM.OpenAIKey {
		t.Errorf("OpenAI key must be masked, got %q", openai.Masked)
	}

	fred := byName["FRED API Key"]
	if fred.IsSet || fred.Source != KeySourceNone {
		t.Errorf("FRED status = %+v", fred)
	}
}

func TestCheckKeyEnvSource(t *testing.T) {
	t.Setenv("MACROQUERY_LLM_OPENAIKEY_TESTONLY", "sk-env-key-for-testing")

	status := checkKey("Test Key", "sk-env-key-for-testing", "MACROQUERY_LLM_OPENAIKEY_TESTONLY")
	if status.Source != KeySourceEnv {
		t.Errorf("Source = %q, want env", status.Source)
	}
}
