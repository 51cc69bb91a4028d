package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys returns the status of every configurable API key.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("OpenAI API Key", cfg.LLM.OpenAIKey, "MACROQUERY_LLM_OPENAI_KEY"),
		checkKey("Anthropic API Key", cfg.LLM.AnthropicKey, "MACROQUERY_LLM_ANTHROPIC_KEY"),
		checkKey("FRED API Key", cfg.Providers.FREDKey, "MACROQUERY_PROVIDERS_FRED_KEY"),
		checkKey("UN Comtrade Key", cfg.Providers.ComtradeKey, "MACROQUERY_PROVIDERS_COMTRADE_KEY"),
		checkKey("ExchangeRate-API Key", cfg.Providers.ExchangeRateKey, "MACROQUERY_PROVIDERS_EXCHANGERATE_KEY"),
		checkKey("CoinGecko Demo Key", cfg.Providers.CoinGeckoKey, "MACROQUERY_PROVIDERS_COINGECKO_KEY"),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = maskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
