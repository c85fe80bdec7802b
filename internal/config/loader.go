package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a pipeline configuration from the given YAML file
// path. After parsing, it applies defaults and records a fingerprint of the
// raw bytes for resume-time comparison.
func Load(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	cfg.Fingerprint = fingerprintOf(data)
	return &cfg, nil
}

// LoadDefault searches for a pipeline config in standard locations and loads
// the first one found. Search order: ./conveyor.yaml, ~/.conveyor/config.yaml
func LoadDefault() (*PipelineConfig, error) {
	candidates := []string{"conveyor.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".conveyor", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no pipeline config found (searched: %v)", candidates)
}

// fingerprintOf hashes the raw config bytes. Phase keys are positional, so
// a changed config makes an old checkpoint unsafe to resume against; the
// engine compares fingerprints and warns on mismatch.
func fingerprintOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// applyDefaults merges pipeline-level defaults into phases and review steps
// that don't set their own values.
func applyDefaults(cfg *PipelineConfig) {
	p := &cfg.Pipeline

	if p.Defaults.MaxCallAttempts <= 0 {
		p.Defaults.MaxCallAttempts = 3
	}
	if p.Defaults.MaxParallel <= 0 {
		p.Defaults.MaxParallel = 4
	}

	for id, a := range p.Agents {
		if a.Model == "" && p.Defaults.Model != "" {
			a.Model = p.Defaults.Model
		}
		if a.Timeout == "" && p.Defaults.SessionTimeout != "" {
			a.Timeout = p.Defaults.SessionTimeout
		}
		p.Agents[id] = a
	}

	for i := range p.Phases {
		ph := &p.Phases[i]
		for j := range ph.Reviews {
			applyReviewDefaults(&ph.Reviews[j])
		}
		if ph.QA != nil {
			applyReviewDefaults(ph.QA)
		}
		if ph.MinLengthRatio <= 0 {
			ph.MinLengthRatio = 0.5
		}
	}

	if p.Verify.MaxFixRounds <= 0 {
		p.Verify.MaxFixRounds = 3
	}
}

func applyReviewDefaults(step *ReviewStep) {
	if step.MaxIterations <= 0 {
		step.MaxIterations = 3
	}
	if step.ApprovalKeyword == "" {
		step.ApprovalKeyword = "APPROVED"
	}
}
