package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPassesValidation(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != Default().Model {
		t.Fatalf("expected default model, got %q", cfg.Model)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := "model: custom/model\nmax_depth: 5\nstrict_code: false\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "custom/model" {
		t.Fatalf("unexpected model: %q", cfg.Model)
	}
	if cfg.MaxDepth != 5 {
		t.Fatalf("unexpected max_depth: %d", cfg.MaxDepth)
	}
	if cfg.StrictCode {
		t.Fatal("expected strict_code override to false")
	}
	if cfg.MaxIterations != Default().MaxIterations {
		t.Fatalf("unset fields should keep their default, got max_iterations=%d", cfg.MaxIterations)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("model: yaml-model\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RLM_MODEL", "env-model")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Model != "env-model" {
		t.Fatalf("expected env override to win, got %q", cfg.Model)
	}
}

func TestValidateRejectsInvalidMaxDepth(t *testing.T) {
	cfg := Default()
	cfg.MaxDepth = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for max_depth < 1")
	}
}

func TestValidateRejectsInvalidMaxIterations(t *testing.T) {
	cfg := Default()
	cfg.MaxIterations = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for max_iterations < 1")
	}
}

func TestDurationHelpersConvertFromSeconds(t *testing.T) {
	cfg := Default()
	cfg.LLMTimeoutS = 1.5
	cfg.RetryBackoffS = 0.25
	if got := cfg.LLMTimeout(); got.Seconds() != 1.5 {
		t.Fatalf("unexpected LLMTimeout: %v", got)
	}
	if got := cfg.RetryBackoff(); got.Seconds() != 0.25 {
		t.Fatalf("unexpected RetryBackoff: %v", got)
	}
}
