// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/session"
)

var envVars = []string{
	"RIGRUN_OLLAMA_URL", "RIGRUN_OPENROUTER_KEY", "OPENROUTER_API_KEY",
	"RIGRUN_DB_PATH", "RIGRUN_ALLOW_REMOTE", "RIGRUN_LOG_LEVEL",
	"RIGRUN_REDIS_URL", "RIGRUN_LISTEN", "RIGRUN_OFFLINE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range envVars {
		t.Setenv(v, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 9.0, cfg.Quality.Target)
	assert.Len(t, cfg.Premium, 3)
	assert.Equal(t, "llama3.2:3b", cfg.Local.Models[0])
	assert.Empty(t, cmp.Diff(session.DefaultConfig(), cfg.Session.SessionSettings()))
}

func TestLoadFromPath_TOMLPartial(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.toml", `
[local]
models = ["phi3:mini"]
timeout_secs = 30

[quality]
target = 8.5
acceptable = 7.0
minimum = 5.0

[[premium]]
id = "vendor/model-a"
input_per_million = 1.0
output_per_million = 2.0
quality = 9.6
`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"phi3:mini"}, cfg.Local.Models)
	assert.Equal(t, 30, cfg.Local.TimeoutSecs)
	assert.Equal(t, "http://127.0.0.1:11434", cfg.Local.OllamaURL)
	assert.Equal(t, 8.5, cfg.Quality.Target)
	require.Len(t, cfg.Premium, 1)
	assert.Equal(t, advisor.Model{
		ID: "vendor/model-a", InputPerMillion: 1, OutputPerMillion: 2, Quality: 9.6,
	}, cfg.Premium[0])
	assert.Equal(t, Default().Storage, cfg.Storage)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "config.json", `{"server": {"listen": ":9000", "rate_limit": 5}}`)

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Listen)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
	assert.Equal(t, 20, cfg.Server.Burst)
	assert.Len(t, cfg.Premium, 3)
}

func TestLoadFromPath_Errors(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := writeFile(t, "bad.toml", "[local\n")
	_, err = LoadFromPath(path)
	require.ErrorContains(t, err, "decode TOML")

	path = writeFile(t, "invalid.toml", "[quality]\ntarget = 5.0\nacceptable = 7.0\nminimum = 1.0\n")
	_, err = LoadFromPath(path)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	require.Equal(t, "quality", verrs[0].Field)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	want := Default()
	want.Cloud.OpenRouterKey = "sk-or-test"
	want.Events.RedisURL = "redis://localhost:6379/0"
	require.NoError(t, SaveTOML(want, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := LoadFromPath(path)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")

	want := Default()
	want.Policy.AllowRemote = true
	require.NoError(t, SaveJSON(want, path))

	got, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("all variables", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RIGRUN_OLLAMA_URL", "http://gpu-box:11434")
		t.Setenv("RIGRUN_OPENROUTER_KEY", "sk-or-primary")
		t.Setenv("OPENROUTER_API_KEY", "sk-or-secondary")
		t.Setenv("RIGRUN_DB_PATH", "/tmp/r.sqlite")
		t.Setenv("RIGRUN_ALLOW_REMOTE", "true")
		t.Setenv("RIGRUN_LOG_LEVEL", "debug")
		t.Setenv("RIGRUN_REDIS_URL", "redis://cache:6379")
		t.Setenv("RIGRUN_LISTEN", ":8080")

		cfg := Default()
		cfg.ApplyEnvOverrides()
		assert.Equal(t, "http://gpu-box:11434", cfg.Local.OllamaURL)
		assert.Equal(t, "sk-or-primary", cfg.Cloud.OpenRouterKey)
		assert.Equal(t, "/tmp/r.sqlite", cfg.Storage.DBPath)
		assert.True(t, cfg.Policy.AllowRemote)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "redis://cache:6379", cfg.Events.RedisURL)
		assert.Equal(t, ":8080", cfg.Server.Listen)
	})

	t.Run("fallback key does not replace file key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENROUTER_API_KEY", "sk-or-secondary")

		cfg := Default()
		cfg.ApplyEnvOverrides()
		assert.Equal(t, "sk-or-secondary", cfg.Cloud.OpenRouterKey)

		cfg.Cloud.OpenRouterKey = "sk-or-file"
		cfg.ApplyEnvOverrides()
		assert.Equal(t, "sk-or-file", cfg.Cloud.OpenRouterKey)
	})

	t.Run("allow remote false", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RIGRUN_ALLOW_REMOTE", "0")
		cfg := Default()
		cfg.Policy.AllowRemote = true
		cfg.ApplyEnvOverrides()
		assert.False(t, cfg.Policy.AllowRemote)
	})
}

func TestValidate_CollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Local.OllamaURL = "ftp://nope"
	cfg.Local.Models = nil
	cfg.Session.ContextLossRisk = 2
	cfg.Premium = append(cfg.Premium, advisor.Model{ID: "openai/gpt-4", Quality: 11})
	cfg.Server.RateLimit = 1
	cfg.Server.Burst = 0
	cfg.Events.RedisURL = "http://redis"
	cfg.Logging.Level = "chatty"

	err := cfg.Validate()
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{
		"local.ollama_url",
		"local.models",
		"session.context_loss_risk",
		"premium[3].id",
		"premium[3].quality",
		"server.burst",
		"events.redis_url",
		"logging",
	}, fields)
	assert.Contains(t, err.Error(), "duplicate model")
}

func TestValidate_Offline(t *testing.T) {
	cfg := Default()
	cfg.Cloud.Offline = true
	require.NoError(t, cfg.Validate())

	cfg.Local.OllamaURL = "http://gpu-box:11434"
	cfg.Events.RedisURL = "redis://cache:6379"
	cfg.Policy.AllowRemote = true

	var verrs ValidateErrors
	require.True(t, errors.As(cfg.Validate(), &verrs))
	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"local.ollama_url", "events.redis_url", "policy.allow_remote"}, fields)
}

func TestApplyEnvOverrides_Offline(t *testing.T) {
	clearEnv(t)
	t.Setenv("RIGRUN_ALLOW_REMOTE", "true")
	t.Setenv("RIGRUN_OFFLINE", "1")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	assert.True(t, cfg.Cloud.Offline)
	assert.False(t, cfg.Policy.AllowRemote)
	require.NoError(t, cfg.Validate())
}

func TestSetDefaults_FillsZeroConfig(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Default().Local, cfg.Local)
	assert.Equal(t, 0.0, cfg.Server.RateLimit)
}

func TestString_MasksKey(t *testing.T) {
	cfg := Default()
	cfg.Cloud.OpenRouterKey = "sk-or-v1-secret-value"
	out := cfg.String()
	assert.NotContains(t, out, "secret-value")
	assert.Contains(t, out, "sk-or-****")
	assert.Equal(t, "sk-or-v1-secret-value", cfg.Cloud.OpenRouterKey)
}

// =============================================================================
// POLICY
// =============================================================================

func TestDefaultPolicy_MatchesPipeline(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	assert.Equal(t, attempt.DefaultPolicy(), p.AttemptPolicy())
}

func TestLoadPolicy(t *testing.T) {
	path := writeFile(t, "policy.yaml", `
routing:
  k_samples: 5
models:
  T1_text:
    name: qwen2.5-coder:7b
    temp: 0.4
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, attempt.Policy{
		KSamples:    5,
		Threshold:   0.67,
		Model:       "qwen2.5-coder:7b",
		Temperature: 0.4,
	}, p.AttemptPolicy())
}

func TestLoadPolicy_MissingTempUsesDefault(t *testing.T) {
	path := writeFile(t, "policy.yaml", `
routing:
  k_samples: 5
models:
  T1_text:
    name: qwen2.5:7b
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, attempt.Policy{
		KSamples:    5,
		Threshold:   0.67,
		Model:       "qwen2.5:7b",
		Temperature: attempt.DefaultPolicy().Temperature,
	}, p.AttemptPolicy())
	assert.Equal(t, 0.2, p.AttemptPolicy().Temperature)

	path = writeFile(t, "greedy.yaml", "models:\n  T1_text:\n    name: qwen2.5:7b\n    temp: 0\n")
	p, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Zero(t, p.Models[LocalTierKey].Temp)
}

func TestLoadPolicy_Invalid(t *testing.T) {
	path := writeFile(t, "policy.yaml", "routing:\n  k_samples: 0\n  consensus_threshold: 1.5\n")
	_, err := LoadPolicy(path)
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read policy file")

	path = writeFile(t, "broken.yaml", "routing: [\n")
	_, err = LoadPolicy(path)
	require.ErrorContains(t, err, "decode policy file")
}

func TestSavePolicy_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	want := DefaultPolicy()
	want.Routing.KSamples = 7
	require.NoError(t, SavePolicy(want, path))

	got, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(want, got))
}
