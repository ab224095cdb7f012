package sandbox

import (
	"context"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Mode represents the sandbox execution mode.
type Mode string

const (
	// ModeDocker runs each process in a throwaway container.
	ModeDocker Mode = "docker"
	// ModeHost runs processes directly on the host.
	ModeHost Mode = "host"
	// ModeAuto selects Docker if available, otherwise falls back to host.
	ModeAuto Mode = "auto"
)

// Config holds configuration for process execution.
type Config struct {
	Mode        Mode
	DockerImage string        // Custom Docker image override
	CPU         string        // CPU limit (e.g., "2")
	Memory      string        // Memory limit (e.g., "1g")
	CmdTimeout  time.Duration // Default command timeout (0 = use default)
}

// ParseMode converts a user supplied mode name. Unknown values fall back to host.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "host":
		return ModeHost
	case "docker":
		return ModeDocker
	case "auto":
		return ModeAuto
	default:
		log.Printf("WARNING: Unknown sandbox mode '%s', defaulting to 'host'", s)
		return ModeHost
	}
}

// DefaultConfig returns the configuration described by environment variables.
func DefaultConfig() Config {
	cmdTimeout := defaultCmdTimeout
	if timeoutStr := os.Getenv("POLYRUN_BUILD_TIMEOUT"); timeoutStr != "" {
		if d, err := time.ParseDuration(timeoutStr); err == nil && d > 0 {
			cmdTimeout = d
		} else {
			log.Printf("WARNING: Invalid POLYRUN_BUILD_TIMEOUT value '%s', using default %s", timeoutStr, defaultCmdTimeout)
		}
	}

	return Config{
		Mode:        ParseMode(os.Getenv("POLYRUN_SANDBOX_MODE")),
		DockerImage: os.Getenv("POLYRUN_DOCKER_IMAGE"),
		CPU:         getEnvOrDefault("POLYRUN_DOCKER_CPU", "2"),
		Memory:      getEnvOrDefault("POLYRUN_DOCKER_MEMORY", "1g"),
		CmdTimeout:  cmdTimeout,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

// IsDockerAvailable checks if Docker is available and accessible.
func IsDockerAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "docker", "ps")
	return cmd.Run() == nil
}

// NewRunner creates a runner for config.Mode. Docker modes degrade to the
// host runner with a warning when the daemon cannot be reached.
func NewRunner(ctx context.Context, config Config) Runner {
	switch config.Mode {
	case ModeDocker, ModeAuto:
		if !IsDockerAvailable(ctx) {
			if config.Mode == ModeDocker {
				log.Printf("WARNING: Docker mode requested but Docker is not available. Falling back to host executor.")
			}
			return NewHostRunner(config)
		}
		dockerRunner, err := NewDockerRunner(ctx, config)
		if err != nil {
			log.Printf("WARNING: Failed to create Docker runner: %v. Falling back to host executor.", err)
			return NewHostRunner(config)
		}
		return dockerRunner
	default:
		return NewHostRunner(config)
	}
}
