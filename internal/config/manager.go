package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the user's persistent configuration preferences.
type Config struct {
	LLMProvider string `json:"llm_provider,omitempty"` // openai, anthropic, ollama, etc.
	APIKey      string `json:"api_key,omitempty"`      // The API key for the selected provider
	Model       string `json:"model,omitempty"`        // Default model name
	BaseURL     string `json:"base_url,omitempty"`     // Optional override for API base URL
	SandboxMode string `json:"sandbox_mode,omitempty"` // host, docker or auto
	Timeout     string `json:"timeout,omitempty"`      // Go duration, e.g. "30s"
	HistoryPath string `json:"history_path,omitempty"` // Run history database; empty disables history
}

// Manager handles loading and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted in the user config dir.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return NewManagerAt(filepath.Join(configDir, "polyrun")), nil
}

// NewManagerAt creates a manager that keeps config.json in dir.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// GetConfigPath returns the absolute path to the config.json file.
func (m *Manager) GetConfigPath() string {
	return filepath.Join(m.configDir, "config.json")
}

// Dir returns the directory holding config.json.
func (m *Manager) Dir() string {
	return m.configDir
}

// Load reads the configuration from disk.
// If the file does not exist, it returns an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.GetConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to disk with restricted permissions (0600).
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// The file holds API keys, so only the owner may read it.
	if err := os.WriteFile(m.GetConfigPath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Exists checks if the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.GetConfigPath())
	return !os.IsNotExist(err)
}

// Merge copies every non-empty field of update into cfg.
func (cfg *Config) Merge(update Config) {
	if update.LLMProvider != "" {
		cfg.LLMProvider = update.LLMProvider
	}
	if update.APIKey != "" {
		cfg.APIKey = update.APIKey
	}
	if update.Model != "" {
		cfg.Model = update.Model
	}
	if update.BaseURL != "" {
		cfg.BaseURL = update.BaseURL
	}
	if update.SandboxMode != "" {
		cfg.SandboxMode = update.SandboxMode
	}
	if update.Timeout != "" {
		cfg.Timeout = update.Timeout
	}
	if update.HistoryPath != "" {
		cfg.HistoryPath = update.HistoryPath
	}
}

// Redacted returns a copy safe to print, with the API key masked.
func (cfg Config) Redacted() Config {
	if n := len(cfg.APIKey); n > 8 {
		cfg.APIKey = cfg.APIKey[:4] + "…" + cfg.APIKey[n-4:]
	} else if n > 0 {
		cfg.APIKey = "****"
	}
	return cfg
}
