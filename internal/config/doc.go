// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigrun.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation. The job attempt policy is
// a separate YAML file.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - LocalConfig / CloudConfig: back-end addresses, models and timeouts
//   - SessionConfig: session cost model and sweeper settings
//   - Policy: k-sample consensus policy loaded from YAML
//   - ValidateErrors: every problem found by Validate
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGRUN_*, OPENROUTER_API_KEY)
//   - ~/.rigrun/config.toml
//   - ~/.rigrun/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sessions := session.NewManager(cfg.Session.SessionSettings(), logger)
//
//	policy, err := config.LoadPolicy(cfg.Policy.Path)
package config
