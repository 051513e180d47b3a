package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_MergesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
version: 1
model:
  main:
    provider: anthropic
    model: claude-sonnet-4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Context.MaxTokens != Defaults().Context.MaxTokens {
		t.Fatalf("expected default max_tokens, got %d", cfg.Context.MaxTokens)
	}
	if cfg.Sandbox.Root != "./sandbox" {
		t.Fatalf("expected default sandbox root, got %q", cfg.Sandbox.Root)
	}
	if !cfg.Agent.ContinuousMode {
		t.Fatalf("expected continuous mode default true")
	}
}

func TestLoad_MissingMainModel(t *testing.T) {
	path := writeTempConfig(t, `
version: 1
sandbox:
  root: /tmp/sandbox
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing model.main")
	}
}

func TestLoad_RejectsUnsupportedVersion(t *testing.T) {
	path := writeTempConfig(t, `
version: 99
model:
  main:
    provider: anthropic
    model: claude-sonnet-4
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	basePath := filepath.Join(dir, "base.yaml")
	mainPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(basePath, []byte(`
context:
  max_tokens: 50000
`), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	if err := os.WriteFile(mainPath, []byte(`
$include: base.yaml
version: 1
model:
  main:
    provider: openai
    model: gpt-4o
`), 0o644); err != nil {
		t.Fatalf("write main: %v", err)
	}

	cfg, err := Load(mainPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Context.MaxTokens != 50000 {
		t.Fatalf("expected included max_tokens 50000, got %d", cfg.Context.MaxTokens)
	}
}

func TestConfig_ValidateRejectsBadThreshold(t *testing.T) {
	cfg := Defaults()
	cfg.Model.Main.Provider = "anthropic"
	cfg.Model.Main.Model = "claude-sonnet-4"
	cfg.Context.CompactionThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range compaction_threshold")
	}
}
