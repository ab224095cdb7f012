package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoad_NotExists(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "polyrun"))

	if m.Exists() {
		t.Error("Exists should return false before Save")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load should not error when file doesn't exist: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	m := NewManagerAt(filepath.Join(t.TempDir(), "polyrun"))

	want := &Config{
		LLMProvider: "anthropic",
		APIKey:      "sk-ant-123456789",
		Model:       "claude-3-5-haiku-latest",
		SandboxMode: "docker",
		Timeout:     "45s",
		HistoryPath: "/tmp/history.db",
	}
	if err := m.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !m.Exists() {
		t.Error("Exists should return true after Save")
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", want, got)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(m.GetConfigPath())
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("expected 0600 permissions, got %o", perm)
		}
	}
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerAt(dir)
	if err := os.WriteFile(m.GetConfigPath(), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(); err == nil {
		t.Error("expected a parse error")
	}
}

func TestMerge(t *testing.T) {
	cfg := Config{LLMProvider: "openai", APIKey: "old", Timeout: "30s"}
	cfg.Merge(Config{APIKey: "new", SandboxMode: "auto"})

	if cfg.LLMProvider != "openai" || cfg.APIKey != "new" || cfg.SandboxMode != "auto" || cfg.Timeout != "30s" {
		t.Errorf("unexpected merge result: %+v", cfg)
	}
}

func TestRedacted(t *testing.T) {
	tests := map[string]string{
		"":                 "",
		"short":            "****",
		"sk-1234567890abc": "sk-1…0abc",
	}
	for key, want := range tests {
		cfg := Config{APIKey: key}
		if got := cfg.Redacted().APIKey; got != want {
			t.Errorf("Redacted(%q) = %q, want %q", key, got, want)
		}
		if cfg.APIKey != key {
			t.Error("Redacted must not modify the receiver")
		}
	}
}
