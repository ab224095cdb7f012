package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ChamsBouzaiene/polyrun/internal/config"
)

// applyConfigToEnv exports persisted settings as the environment variables
// the rest of the program reads. Without override, variables that are already
// set win. The timeout is not exported: it ranks below the project config and
// is read by resolveTimeout.
func applyConfigToEnv(cfg *config.Config, override bool) {
	set := func(key, value string) {
		if value == "" {
			return
		}
		if !override && os.Getenv(key) != "" {
			return
		}
		os.Setenv(key, value)
	}

	set("LLM_PROVIDER", cfg.LLMProvider)

	provider := cfg.LLMProvider
	if provider == "" {
		provider = os.Getenv("LLM_PROVIDER")
	}
	if provider == "" {
		provider = "openai"
	}
	prefix := strings.ToUpper(provider)
	set(prefix+"_API_KEY", cfg.APIKey)
	set(prefix+"_MODEL", cfg.Model)
	set(prefix+"_BASE_URL", cfg.BaseURL)

	set("POLYRUN_SANDBOX_MODE", cfg.SandboxMode)
	set("POLYRUN_HISTORY", cfg.HistoryPath)
}

// configFromMap converts the wire form used by the stdio protocol.
func configFromMap(m map[string]string) (config.Config, error) {
	var cfg config.Config
	for k, v := range m {
		switch k {
		case "llm_provider":
			cfg.LLMProvider = v
		case "api_key":
			cfg.APIKey = v
		case "model":
			cfg.Model = v
		case "base_url":
			cfg.BaseURL = v
		case "sandbox_mode":
			cfg.SandboxMode = v
		case "timeout":
			cfg.Timeout = v
		case "history_path":
			cfg.HistoryPath = v
		default:
			return config.Config{}, fmt.Errorf("unknown config key %q", k)
		}
	}
	return cfg, nil
}

func configToMap(cfg config.Config) map[string]string {
	return map[string]string{
		"llm_provider": cfg.LLMProvider,
		"api_key":      cfg.APIKey,
		"model":        cfg.Model,
		"base_url":     cfg.BaseURL,
		"sandbox_mode": cfg.SandboxMode,
		"timeout":      cfg.Timeout,
		"history_path": cfg.HistoryPath,
	}
}
