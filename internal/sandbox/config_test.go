package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"":       ModeHost,
		"host":   ModeHost,
		"DOCKER": ModeDocker,
		" auto ": ModeAuto,
		"bogus":  ModeHost,
	}
	for in, want := range tests {
		if got := ParseMode(in); got != want {
			t.Errorf("ParseMode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("POLYRUN_SANDBOX_MODE", "docker")
	t.Setenv("POLYRUN_BUILD_TIMEOUT", "45s")
	t.Setenv("POLYRUN_DOCKER_MEMORY", "512m")
	t.Setenv("POLYRUN_DOCKER_IMAGE", "")

	cfg := DefaultConfig()
	if cfg.Mode != ModeDocker {
		t.Errorf("expected docker mode, got %q", cfg.Mode)
	}
	if cfg.CmdTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %v", cfg.CmdTimeout)
	}
	if cfg.Memory != "512m" {
		t.Errorf("expected memory override, got %q", cfg.Memory)
	}
	if cfg.CPU != "2" {
		t.Errorf("expected default CPU, got %q", cfg.CPU)
	}
}

func TestDefaultConfigInvalidTimeout(t *testing.T) {
	t.Setenv("POLYRUN_BUILD_TIMEOUT", "soon")
	if cfg := DefaultConfig(); cfg.CmdTimeout != defaultCmdTimeout {
		t.Errorf("expected default timeout, got %v", cfg.CmdTimeout)
	}
}

func TestNewRunnerHostMode(t *testing.T) {
	r := NewRunner(context.Background(), Config{Mode: ModeHost})
	if _, ok := r.(*HostRunner); !ok {
		t.Errorf("expected *HostRunner, got %T", r)
	}
}

func TestParseMemory(t *testing.T) {
	tests := map[string]int64{
		"":     defaultMemory,
		"512m": 512 * 1024 * 1024,
		"1g":   1024 * 1024 * 1024,
		"2GB":  2 * 1024 * 1024 * 1024,
		"lots": defaultMemory,
		"-1g":  defaultMemory,
	}
	for in, want := range tests {
		if got := parseMemory(in); got != want {
			t.Errorf("parseMemory(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseCPU(t *testing.T) {
	if got := parseCPU("1.5"); got != 1.5 {
		t.Errorf("expected 1.5, got %v", got)
	}
	if got := parseCPU("zero"); got != defaultCPUs {
		t.Errorf("expected default, got %v", got)
	}
}

func TestGetDockerImage(t *testing.T) {
	if got := GetDockerImage(workspace.RuntimeNode, Config{}); got != "node:alpine" {
		t.Errorf("unexpected node image %q", got)
	}
	if got := GetDockerImage(workspace.RuntimeDotnet, Config{}); got != "mcr.microsoft.com/dotnet/sdk:8.0" {
		t.Errorf("unexpected dotnet image %q", got)
	}
	if got := GetDockerImage(workspace.RuntimePython, Config{DockerImage: "custom:1"}); got != "custom:1" {
		t.Errorf("expected override, got %q", got)
	}
}
