package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Default()
	cfg.Incremental.Mode = "turbo"
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected validation error for unknown incremental mode")
	}
}

func TestResolvedWorkersDefaultsToAuto(t *testing.T) {
	p := Parallel{}
	if p.ResolvedWorkers() < 1 {
		t.Errorf("ResolvedWorkers must be at least 1")
	}
}

func TestLoadKDLMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("missing .codegraph.kdl should not error: %v", err)
	}
	if cfg.Project.Root != dir {
		t.Errorf("expected Project.Root = %q, got %q", dir, cfg.Project.Root)
	}
	if cfg.Taint.ContextK != 2 {
		t.Errorf("expected default taint.context_k of 2, got %d", cfg.Taint.ContextK)
	}
}

func TestLoadKDLParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
project {
    name "demo"
}
parallel {
    workers 4
}
taint {
    context_k 3
    path_sensitive true
}
incremental {
    mode "deep"
}
include "**/*.go"
`
	if err := os.WriteFile(filepath.Join(dir, ".codegraph.kdl"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadKDL(dir)
	if err != nil {
		t.Fatalf("LoadKDL: %v", err)
	}
	if cfg.Project.Name != "demo" {
		t.Errorf("expected project.name = demo, got %q", cfg.Project.Name)
	}
	if cfg.Parallel.Workers != 4 {
		t.Errorf("expected parallel.workers = 4, got %d", cfg.Parallel.Workers)
	}
	if cfg.Taint.ContextK != 3 || !cfg.Taint.PathSensitive {
		t.Errorf("expected taint overrides applied, got %+v", cfg.Taint)
	}
	if cfg.Incremental.Mode != IncrementalDeep {
		t.Errorf("expected incremental.mode = deep, got %q", cfg.Incremental.Mode)
	}
	if len(cfg.Include) != 1 || cfg.Include[0] != "**/*.go" {
		t.Errorf("expected include = [**/*.go], got %v", cfg.Include)
	}
}

func TestLoadTOMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codegraph.toml")
	content := `
[parallel]
workers = 8

[taint]
context_k = 5
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}

	cfg, err := LoadTOML(path)
	if err != nil {
		t.Fatalf("LoadTOML: %v", err)
	}
	if cfg.Parallel.Workers != 8 {
		t.Errorf("expected parallel.workers = 8, got %d", cfg.Parallel.Workers)
	}
	if cfg.Taint.ContextK != 5 {
		t.Errorf("expected taint.context_k = 5, got %d", cfg.Taint.ContextK)
	}
	if cfg.Heap.EnableEscape != true {
		t.Errorf("expected heap.enable_escape to retain default true")
	}
}
