package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// #region default_tests

func TestDefault_Values(t *testing.T) {
	cfg := Default()
	if cfg.MaxGenerations != 3 {
		t.Errorf("max_generations = %d", cfg.MaxGenerations)
	}
	if cfg.RoundsPerGen != 5 {
		t.Errorf("rounds_per_gen = %d", cfg.RoundsPerGen)
	}
	if cfg.InitialProposals != 3 {
		t.Errorf("initial_proposals = %d", cfg.InitialProposals)
	}
	if cfg.TopMEvolve != 2 {
		t.Errorf("top_m_evolve = %d", cfg.TopMEvolve)
	}
	if cfg.KFactor != 32 {
		t.Errorf("k_factor = %f", cfg.KFactor)
	}
	if cfg.MaxInflight != 4 {
		t.Errorf("max_inflight = %d", cfg.MaxInflight)
	}
	if cfg.ConvergenceEps != 20 {
		t.Errorf("convergence_epsilon = %f", cfg.ConvergenceEps)
	}
	if cfg.SoftTimeout != 60*time.Second || cfg.HardTimeout != 120*time.Second {
		t.Errorf("timeouts = %s/%s", cfg.SoftTimeout, cfg.HardTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

// #endregion default_tests

// #region load_tests

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policyaide.yaml")
	yaml := "max_generations: 5\nrounds_per_gen: 2\nworker_model: gpt-4o-mini\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("POLICYAIDE_MAX_GENERATIONS", "7")
	t.Setenv("OPENAI_AGENTS_DISABLE_TRACING", "true")
	t.Setenv("OPENAI_AGENTS_TRACE_DIR", filepath.Join(dir, "traces"))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxGenerations != 7 {
		t.Errorf("env must override yaml: max_generations = %d", cfg.MaxGenerations)
	}
	if cfg.RoundsPerGen != 2 {
		t.Errorf("yaml must override defaults: rounds_per_gen = %d", cfg.RoundsPerGen)
	}
	if cfg.WorkerModel != "gpt-4o-mini" {
		t.Errorf("worker_model = %q", cfg.WorkerModel)
	}
	if !cfg.DisableTracing {
		t.Error("OPENAI_AGENTS_DISABLE_TRACING must disable tracing")
	}
	if cfg.TraceDir != filepath.Join(dir, "traces") {
		t.Errorf("trace_dir = %q", cfg.TraceDir)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("no-such-config.yaml"); err == nil {
		t.Error("missing config file must error")
	}
}

// #endregion load_tests

// #region validate_tests

func TestValidate_Bounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"max_generations", func(c *Config) { c.MaxGenerations = 0 }},
		{"rounds_per_gen", func(c *Config) { c.RoundsPerGen = 0 }},
		{"initial_proposals", func(c *Config) { c.InitialProposals = 1 }},
		{"top_m_evolve", func(c *Config) { c.TopMEvolve = 0 }},
		{"max_inflight", func(c *Config) { c.MaxInflight = 0 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

// #endregion validate_tests
