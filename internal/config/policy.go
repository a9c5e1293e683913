// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// JOB POLICY (YAML)
// =============================================================================

// Policy is the job attempt policy file.
//
//	routing:
//	  k_samples: 3
//	  consensus_threshold: 0.67
//	models:
//	  T1_text:
//	    name: llama3.2:3b
//	    temp: 0.2
type Policy struct {
	Routing PolicyRouting          `yaml:"routing"`
	Models  map[string]PolicyModel `yaml:"models"`
}

// PolicyRouting holds the sampling and consensus settings.
type PolicyRouting struct {
	KSamples           int     `yaml:"k_samples"`
	ConsensusThreshold float64 `yaml:"consensus_threshold"`
}

// PolicyModel names a model and its sampling temperature.
type PolicyModel struct {
	Name string  `yaml:"name"`
	Temp float64 `yaml:"temp"`
}

// UnmarshalYAML fills a missing temp with the default sampling temperature.
// An explicit 0 is kept.
func (m *PolicyModel) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Name string   `yaml:"name"`
		Temp *float64 `yaml:"temp"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	m.Name = raw.Name
	m.Temp = attempt.DefaultPolicy().Temperature
	if raw.Temp != nil {
		m.Temp = *raw.Temp
	}
	return nil
}

// LocalTierKey is the models entry used for local sampling.
const LocalTierKey = "T1_text"

// DefaultPolicy mirrors attempt.DefaultPolicy.
func DefaultPolicy() Policy {
	p := attempt.DefaultPolicy()
	return Policy{
		Routing: PolicyRouting{KSamples: p.KSamples, ConsensusThreshold: p.Threshold},
		Models: map[string]PolicyModel{
			LocalTierKey: {Name: p.Model, Temp: p.Temperature},
		},
	}
}

// LoadPolicy reads a policy file. An empty path returns DefaultPolicy.
// Missing routing fields and model entries keep their defaults.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("failed to decode policy file %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, fmt.Errorf("invalid policy %s: %w", path, err)
	}
	return p, nil
}

// SavePolicy atomically writes p as YAML.
func SavePolicy(p Policy, path string) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode policy: %w", err)
	}
	return util.AtomicWriteFile(path, data, 0644)
}

// Validate checks the sampling settings and the local tier entry.
func (p Policy) Validate() error {
	var errs ValidateErrors
	if p.Routing.KSamples < 1 {
		errs = append(errs, ValidationError{
			Field:   "routing.k_samples",
			Message: fmt.Sprintf("must be at least 1, got %d", p.Routing.KSamples),
		})
	}
	if p.Routing.ConsensusThreshold <= 0 || p.Routing.ConsensusThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "routing.consensus_threshold",
			Message: fmt.Sprintf("must be in (0, 1], got %g", p.Routing.ConsensusThreshold),
		})
	}
	if m, ok := p.Models[LocalTierKey]; !ok || m.Name == "" {
		errs = append(errs, ValidationError{
			Field:   "models." + LocalTierKey + ".name",
			Message: "local model name is required",
		})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// AttemptPolicy converts to the pipeline policy.
func (p Policy) AttemptPolicy() attempt.Policy {
	m := p.Models[LocalTierKey]
	return attempt.Policy{
		KSamples:    p.Routing.KSamples,
		Threshold:   p.Routing.ConsensusThreshold,
		Model:       m.Name,
		Temperature: m.Temp,
	}
}
