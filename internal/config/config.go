// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/cloud"
	"github.com/jeranaias/rigrun-router/internal/events"
	"github.com/jeranaias/rigrun-router/internal/logging"
	"github.com/jeranaias/rigrun-router/internal/offline"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigrun configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Local (Ollama) back-end
	Local LocalConfig `toml:"local" json:"local"`

	// Cloud (OpenRouter) back-end
	Cloud CloudConfig `toml:"cloud" json:"cloud"`

	// Quality bands on the 0-10 scale
	Quality router.Thresholds `toml:"quality" json:"quality"`

	// Session cost model and lifecycle
	Session SessionConfig `toml:"session" json:"session"`

	// Premium is the upgrade pricing table in ranking order.
	Premium []advisor.Model `toml:"premium" json:"premium"`

	Storage StorageConfig `toml:"storage" json:"storage"`
	Oracle  OracleConfig  `toml:"oracle" json:"oracle"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Events  EventsConfig  `toml:"events" json:"events"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Policy  PolicyConfig  `toml:"policy" json:"policy"`
}

// LocalConfig contains local Ollama configuration.
type LocalConfig struct {
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url" json:"ollama_url"`
	// Models are tried for every routed prompt, in order
	Models []string `toml:"models" json:"models"`
	// TimeoutSecs bounds each local model run during routing
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// RequestsPerSecond paces generation calls (0 = unlimited)
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
}

// CloudConfig contains cloud provider (OpenRouter) configuration.
type CloudConfig struct {
	// OpenRouterKey is the OpenRouter API key
	OpenRouterKey string `toml:"openrouter_key" json:"openrouter_key"`
	BaseURL       string `toml:"base_url" json:"base_url"`
	// DefaultModel is used for manual upgrades when nothing ranks
	DefaultModel string `toml:"default_model" json:"default_model"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs"`
	MaxRetries   int    `toml:"max_retries" json:"max_retries"`
	// Offline blocks every cloud call and requires local endpoints
	Offline bool `toml:"offline" json:"offline"`
}

// SessionConfig mirrors session.Config with file-friendly units.
type SessionConfig struct {
	ContextTransferCost     float64 `toml:"context_transfer_cost" json:"context_transfer_cost"`
	AverageSessionTasks     int     `toml:"average_session_tasks" json:"average_session_tasks"`
	SessionContinuationCost float64 `toml:"session_continuation_cost" json:"session_continuation_cost"`
	ContextLossRisk         float64 `toml:"context_loss_risk" json:"context_loss_risk"`
	// MaxAgeHours is how long ended sessions are kept in memory
	MaxAgeHours int `toml:"max_age_hours" json:"max_age_hours"`
	// SweepIntervalMins is how often `serve` cleans up old sessions
	SweepIntervalMins int `toml:"sweep_interval_mins" json:"sweep_interval_mins"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DBPath string `toml:"db_path" json:"db_path"`
}

// OracleConfig locates the routing table file.
type OracleConfig struct {
	Path string `toml:"path" json:"path"`
	// Watch reloads the table when the file changes (serve only)
	Watch bool `toml:"watch" json:"watch"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Listen string `toml:"listen" json:"listen"`
	// RateLimit is requests per second per client IP (0 = unlimited)
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	Burst     int     `toml:"burst" json:"burst"`
}

// EventsConfig enables decision events on Redis Pub/Sub.
type EventsConfig struct {
	// RedisURL empty disables publishing
	RedisURL string `toml:"redis_url" json:"redis_url"`
	Channel  string `toml:"channel" json:"channel"`
}

// LoggingConfig selects the zap level and encoding.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// PolicyConfig controls the job attempt pipeline.
type PolicyConfig struct {
	// Path to a policy YAML file; empty uses the built-in policy
	Path string `toml:"path" json:"path"`
	// AllowRemote is the default for `run --allow-remote`
	AllowRemote bool `toml:"allow_remote" json:"allow_remote"`
}

// LocalTimeout returns the per-model routing timeout.
func (c LocalConfig) LocalTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Timeout returns the cloud request timeout.
func (c CloudConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SessionSettings converts to the session package configuration.
func (c SessionConfig) SessionSettings() session.Config {
	return session.Config{
		ContextTransferCost:     c.ContextTransferCost,
		AverageSessionTasks:     c.AverageSessionTasks,
		SessionContinuationCost: c.SessionContinuationCost,
		ContextLossRisk:         c.ContextLossRisk,
		MaxAge:                  time.Duration(c.MaxAgeHours) * time.Hour,
		SweepInterval:           time.Duration(c.SweepIntervalMins) * time.Minute,
	}
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// DefaultListen is the default HTTP API address.
const DefaultListen = "127.0.0.1:8787"

// DefaultOraclePath is the default routing table file.
const DefaultOraclePath = "oracle/routing_table.json"

// Default returns a Config with sensible default values.
func Default() *Config {
	sess := session.DefaultConfig()
	return &Config{
		Version: "1.0.0",

		Local: LocalConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			Models:      router.DefaultLocalModels(),
			TimeoutSecs: int(router.DefaultLocalTimeout / time.Second),
		},

		Cloud: CloudConfig{
			OpenRouterKey: "",
			BaseURL:       cloud.DefaultOpenRouterURL,
			DefaultModel:  router.DefaultCloudModel,
			TimeoutSecs:   int(cloud.DefaultTimeout / time.Second),
			MaxRetries:    cloud.DefaultMaxRetries,
		},

		Quality: router.DefaultThresholds(),

		Session: SessionConfig{
			ContextTransferCost:     sess.ContextTransferCost,
			AverageSessionTasks:     sess.AverageSessionTasks,
			SessionContinuationCost: sess.SessionContinuationCost,
			ContextLossRisk:         sess.ContextLossRisk,
			MaxAgeHours:             int(sess.MaxAge / time.Hour),
			SweepIntervalMins:       int(sess.SweepInterval / time.Minute),
		},

		Premium: advisor.DefaultModels(),

		Storage: StorageConfig{DBPath: storage.DefaultPath},
		Oracle:  OracleConfig{Path: DefaultOraclePath, Watch: true},
		Server:  ServerConfig{Listen: DefaultListen, RateLimit: 10, Burst: 20},
		Events:  EventsConfig{Channel: events.DefaultChannel},
		Logging: LoggingConfig{Level: logging.DefaultLevel, Format: logging.FormatJSON},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigrun configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ensureSecurePermissions tightens config files to 0600; they hold API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.rigrun. Tries TOML first, then JSON, and
// falls back to defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	return finish(Default())
}

// LoadFromPath loads configuration from a specific file with full
// validation. Files ending in .json are read as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	// Array tables decode over existing elements; start the table empty so
	// defaults never leak into file entries.
	cfg.Premium = nil

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML atomically writes cfg as TOML with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# rigrun configuration file\n")
	buf.WriteString("# Generated by rigrun - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON atomically writes cfg as indented JSON with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := util.WriteJSONFile(path, cfg, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidateErrors listing all
// problems, or nil.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Local
	if err := validateURL(c.Local.OllamaURL, "http", "https"); err != nil {
		add("local.ollama_url", "%v", err)
	}
	if len(c.Local.Models) == 0 {
		add("local.models", "at least one local model is required")
	}
	for i, m := range c.Local.Models {
		if strings.TrimSpace(m) == "" {
			add(fmt.Sprintf("local.models[%d]", i), "model name is empty")
		}
	}
	if c.Local.TimeoutSecs <= 0 {
		add("local.timeout_secs", "must be positive, got %d", c.Local.TimeoutSecs)
	}
	if c.Local.RequestsPerSecond < 0 {
		add("local.requests_per_second", "must not be negative")
	}

	// Cloud
	if err := validateURL(c.Cloud.BaseURL, "http", "https"); err != nil {
		add("cloud.base_url", "%v", err)
	}
	if c.Cloud.TimeoutSecs <= 0 {
		add("cloud.timeout_secs", "must be positive, got %d", c.Cloud.TimeoutSecs)
	}
	if c.Cloud.MaxRetries < 0 {
		add("cloud.max_retries", "must not be negative")
	}

	// Quality
	q := c.Quality
	if q.Target < 0 || q.Target > 10 {
		add("quality.target", "must be between 0 and 10, got %.1f", q.Target)
	}
	if !(q.Minimum <= q.Acceptable && q.Acceptable <= q.Target) {
		add("quality", "thresholds must satisfy minimum <= acceptable <= target")
	}

	// Session
	s := c.Session
	if s.ContextTransferCost < 0 || s.SessionContinuationCost < 0 {
		add("session", "costs must not be negative")
	}
	if s.AverageSessionTasks <= 0 {
		add("session.average_session_tasks", "must be positive, got %d", s.AverageSessionTasks)
	}
	if s.ContextLossRisk < 0 || s.ContextLossRisk > 1 {
		add("session.context_loss_risk", "must be between 0 and 1")
	}
	if s.MaxAgeHours <= 0 {
		add("session.max_age_hours", "must be positive")
	}
	if s.SweepIntervalMins <= 0 {
		add("session.sweep_interval_mins", "must be positive")
	}

	// Premium
	seen := make(map[string]bool, len(c.Premium))
	for i, m := range c.Premium {
		field := fmt.Sprintf("premium[%d]", i)
		switch {
		case m.ID == "":
			add(field+".id", "model id is empty")
		case seen[m.ID]:
			add(field+".id", "duplicate model %q", m.ID)
		}
		seen[m.ID] = true
		if m.InputPerMillion < 0 || m.OutputPerMillion < 0 {
			add(field, "prices must not be negative")
		}
		if m.Quality < 0 || m.Quality > 10 {
			add(field+".quality", "must be between 0 and 10")
		}
	}

	// Server
	if c.Server.Listen == "" {
		add("server.listen", "listen address is empty")
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.Burst < 1 {
		add("server.burst", "must be at least 1 when rate_limit is set")
	}

	// Events
	if c.Events.RedisURL != "" {
		if err := validateURL(c.Events.RedisURL, "redis", "rediss", "unix"); err != nil {
			add("events.redis_url", "%v", err)
		}
	}

	// Offline
	if c.Cloud.Offline {
		if err := offline.ValidateLocalURL(c.Local.OllamaURL); err != nil {
			add("local.ollama_url", "%v", err)
		}
		if c.Events.RedisURL != "" {
			if err := offline.ValidateLocalURL(c.Events.RedisURL); err != nil {
				add("events.redis_url", "%v", err)
			}
		}
		if c.Policy.AllowRemote {
			add("policy.allow_remote", "cannot be set in offline mode")
		}
	}

	// Logging
	if _, err := logging.New(c.Logging.Level, c.Logging.Format); err != nil {
		add("logging", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("invalid URL %q: scheme must be one of %s", raw, strings.Join(schemes, ", "))
}

// SetDefaults fills zero-value fields with defaults.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Version == "" {
		c.Version = d.Version
	}

	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = d.Local.OllamaURL
	}
	if len(c.Local.Models) == 0 {
		c.Local.Models = d.Local.Models
	}
	if c.Local.TimeoutSecs == 0 {
		c.Local.TimeoutSecs = d.Local.TimeoutSecs
	}

	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = d.Cloud.BaseURL
	}
	if c.Cloud.DefaultModel == "" {
		c.Cloud.DefaultModel = d.Cloud.DefaultModel
	}
	if c.Cloud.TimeoutSecs == 0 {
		c.Cloud.TimeoutSecs = d.Cloud.TimeoutSecs
	}

	if c.Quality == (router.Thresholds{}) {
		c.Quality = d.Quality
	}

	if c.Session.AverageSessionTasks == 0 {
		c.Session.AverageSessionTasks = d.Session.AverageSessionTasks
	}
	if c.Session.MaxAgeHours == 0 {
		c.Session.MaxAgeHours = d.Session.MaxAgeHours
	}
	if c.Session.SweepIntervalMins == 0 {
		c.Session.SweepIntervalMins = d.Session.SweepIntervalMins
	}

	if len(c.Premium) == 0 {
		c.Premium = d.Premium
	}

	if c.Storage.DBPath == "" {
		c.Storage.DBPath = d.Storage.DBPath
	}
	if c.Oracle.Path == "" {
		c.Oracle.Path = d.Oracle.Path
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.RateLimit > 0 && c.Server.Burst == 0 {
		c.Server.Burst = d.Server.Burst
	}
	if c.Events.Channel == "" {
		c.Events.Channel = d.Events.Channel
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGRUN_OLLAMA_URL: overrides local.ollama_url
//   - RIGRUN_OPENROUTER_KEY: overrides cloud.openrouter_key
//   - OPENROUTER_API_KEY: used when no key is set by the above or the file
//   - RIGRUN_DB_PATH: overrides storage.db_path
//   - RIGRUN_ALLOW_REMOTE: "1" or "true" sets policy.allow_remote
//   - RIGRUN_LOG_LEVEL: overrides logging.level
//   - RIGRUN_REDIS_URL: overrides events.redis_url
//   - RIGRUN_LISTEN: overrides server.listen
//   - RIGRUN_OFFLINE: "1" or "true" sets cloud.offline and clears
//     policy.allow_remote
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGRUN_OLLAMA_URL"); v != "" {
		c.Local.OllamaURL = v
	}

	if key := os.Getenv("RIGRUN_OPENROUTER_KEY"); key != "" {
		c.Cloud.OpenRouterKey = key
	} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && c.Cloud.OpenRouterKey == "" {
		c.Cloud.OpenRouterKey = key
	}

	if v := os.Getenv("RIGRUN_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("RIGRUN_ALLOW_REMOTE"); v != "" {
		c.Policy.AllowRemote = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RIGRUN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RIGRUN_REDIS_URL"); v != "" {
		c.Events.RedisURL = v
	}
	if v := os.Getenv("RIGRUN_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("RIGRUN_OFFLINE"); v != "" {
		c.Cloud.Offline = v == "1" || strings.EqualFold(v, "true")
		if c.Cloud.Offline {
			c.Policy.AllowRemote = false
		}
	}
}

// =============================================================================
// DISPLAY
// =============================================================================

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Local.Models = append([]string(nil), c.Local.Models...)
	out.Premium = make([]advisor.Model, len(c.Premium))
	for i, m := range c.Premium {
		m.Specialties = append([]string(nil), m.Specialties...)
		out.Premium[i] = m
	}
	return &out
}

// String renders the config as TOML with the API key masked.
func (c *Config) String() string {
	masked := c.Clone()
	if masked.Cloud.OpenRouterKey != "" {
		masked.Cloud.OpenRouterKey = cloud.NewClient(c.Cloud.OpenRouterKey).APIKeyMasked()
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(masked); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
