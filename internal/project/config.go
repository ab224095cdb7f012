package project

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// Dir is the directory name for per-project polyrun settings
	Dir = ".polyrun"
	// ConfigFile is the name of the project configuration file
	ConfigFile = "config.json"
	// IgnoreFile lists extra gitignore-style patterns skipped by watch mode
	IgnoreFile = "ignore"
)

// ProjectConfig holds per-project overrides applied when running files of a
// project, most notably in watch mode.
type ProjectConfig struct {
	Timeout    string `json:"timeout,omitempty"`     // Go duration for each run
	JSONSchema string `json:"json_schema,omitempty"` // relative to the project root
}

// RunTimeout parses Timeout. Zero means "use the default".
func (c *ProjectConfig) RunTimeout() (time.Duration, error) {
	if c == nil || c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid project timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid project timeout %q: must be positive", c.Timeout)
	}
	return d, nil
}

// SchemaPath resolves JSONSchema against the project root.
func (c *ProjectConfig) SchemaPath(root string) string {
	if c == nil || c.JSONSchema == "" {
		return ""
	}
	if filepath.IsAbs(c.JSONSchema) {
		return c.JSONSchema
	}
	return filepath.Join(root, c.JSONSchema)
}

func configPath(root string) string {
	return filepath.Join(root, Dir, ConfigFile)
}

func ignorePath(root string) string {
	return filepath.Join(root, Dir, IgnoreFile)
}

// ConfigExists checks if a project configuration file exists.
func ConfigExists(root string) bool {
	_, err := os.Stat(configPath(root))
	return !os.IsNotExist(err)
}

// FindRoot returns the nearest directory at or above start that holds a
// project config. Without one, start itself is returned.
func FindRoot(start string) string {
	for dir := start; ; {
		if ConfigExists(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// LoadConfig reads the project configuration from disk.
// Returns nil and no error if the config file does not exist.
func LoadConfig(root string) (*ProjectConfig, error) {
	path := configPath(root)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var cfg ProjectConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the project configuration to disk.
// Creates the .polyrun directory if it doesn't exist.
func SaveConfig(root string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(filepath.Join(root, Dir), 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project config: %w", err)
	}

	if err := os.WriteFile(configPath(root), data, 0644); err != nil {
		return fmt.Errorf("failed to write project config: %w", err)
	}

	return nil
}

// LoadIgnorePatterns reads .polyrun/ignore, skipping blank lines and comments.
// Returns nil and no error if the file does not exist.
func LoadIgnorePatterns(root string) ([]string, error) {
	f, err := os.Open(ignorePath(root))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}
	return patterns, nil
}
