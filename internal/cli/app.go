// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/cloud"
	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/events"
	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/logging"
	"github.com/jeranaias/rigrun-router/internal/offline"
	"github.com/jeranaias/rigrun-router/internal/ollama"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/schema"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	jsonOut    bool
	noColor    bool
	offline    bool
}

// =============================================================================
// APPLICATION CONTEXT
// =============================================================================

// app holds the configuration and the lazily built dependencies of one
// command invocation. Close releases whatever was opened.
type app struct {
	opts globalOptions

	cfg    *config.Config
	logger *zap.Logger
	styles Styles
	out    io.Writer
	errOut io.Writer
	in     io.Reader
	rich   bool

	store   *storage.Store
	sink    eventSink
	metrics *telemetry.Metrics
	closers []func() error
}

// eventSink receives every route and attempt outcome.
type eventSink interface {
	router.Observer
	attempt.Observer
}

// init loads configuration and sets up logging and output styles. It runs
// before every command.
func (a *app) init(out, errOut io.Writer, in io.Reader) error {
	a.out, a.errOut, a.in = out, errOut, in

	var (
		cfg *config.Config
		err error
	)
	if a.opts.configPath != "" {
		cfg, err = config.LoadFromPath(a.opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.opts.offline {
		cfg.Cloud.Offline = true
		cfg.Policy.AllowRemote = false
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	a.cfg = cfg

	level := cfg.Logging.Level
	if a.opts.logLevel != "" {
		level = a.opts.logLevel
	}
	logger, err := logging.New(level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closers = append(a.closers, func() error {
		_ = a.logger.Sync()
		return nil
	})

	a.styles = NewStyles(newRenderer(out, a.opts.noColor))
	a.rich = !a.opts.jsonOut && !a.opts.noColor && isTerminal(out)
	return nil
}

// Close releases opened resources in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store opens the routing database on first use.
func (a *app) Store(ctx context.Context) (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := storage.Open(ctx, a.cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return s, nil
}

// Metrics returns the process-wide metrics.
func (a *app) Metrics() *telemetry.Metrics {
	if a.metrics == nil {
		a.metrics = telemetry.Default()
	}
	return a.metrics
}

// Events connects the decision event publisher. Without a Redis URL events
// are dropped.
func (a *app) Events(ctx context.Context) (eventSink, error) {
	if a.sink != nil {
		return a.sink, nil
	}
	if a.cfg.Events.RedisURL == "" {
		a.sink = events.Nop{}
		return a.sink, nil
	}
	p, err := events.NewRedisPublisher(ctx, a.cfg.Events.RedisURL, a.cfg.Events.Channel, a.logger)
	if err != nil {
		return nil, err
	}
	a.sink = p
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// Ollama returns a client for the configured local server. Job attempts get
// trimmed responses.
func (a *app) Ollama() *ollama.Client {
	return ollama.NewClient(a.ollamaConfig())
}

// RawOllama returns a client that keeps responses untrimmed, so quality
// scores see the text exactly as the model produced it.
func (a *app) RawOllama() *ollama.Client {
	cfg := a.ollamaConfig()
	cfg.KeepWhitespace = true
	return ollama.NewClient(cfg)
}

func (a *app) ollamaConfig() ollama.ClientConfig {
	return ollama.ClientConfig{
		BaseURL:           a.cfg.Local.OllamaURL,
		RequestsPerSecond: a.cfg.Local.RequestsPerSecond,
	}
}

// Cloud returns an OpenRouter client, which has no key when none is
// configured. In offline mode it returns a completer that always refuses.
func (a *app) Cloud() llm.Completer {
	if a.cfg.Cloud.Offline {
		return offline.Guard()
	}
	return cloud.NewClient(a.cfg.Cloud.OpenRouterKey).
		WithBaseURL(a.cfg.Cloud.BaseURL).
		WithTimeout(a.cfg.Cloud.Timeout()).
		WithMaxRetries(a.cfg.Cloud.MaxRetries).
		WithLogger(a.logger)
}

// Router builds the tiered router with persistence, metrics and events.
func (a *app) Router(ctx context.Context) (*router.Router, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.Events(ctx)
	if err != nil {
		return nil, err
	}

	adv := advisor.New(a.cfg.Premium)
	local := router.NewLocalRunner(a.RawOllama(), a.cfg.Local.Models, a.cfg.Local.LocalTimeout(), a.logger)
	remote := router.NewCloudRunner(a.Cloud(), adv)
	sessions := session.NewManager(a.cfg.Session.SessionSettings(), a.logger)

	return router.New(local, remote, adv, sessions,
		router.WithThresholds(a.cfg.Quality),
		router.WithDefaultCloudModel(a.cfg.Cloud.DefaultModel),
		router.WithTaskSink(store),
		router.WithSessionSink(store),
		router.WithObserver(telemetry.RouteFanout(a.Metrics(), sink)),
		router.WithLogger(a.logger),
	), nil
}

// Pipeline builds the job attempt pipeline over the local server. table
// supplies the remote routing table consulted on escalation.
func (a *app) Pipeline(ctx context.Context, table attempt.RoutingTable) (*attempt.Pipeline, error) {
	policy, err := config.LoadPolicy(a.cfg.Policy.Path)
	if err != nil {
		return nil, err
	}
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := a.Events(ctx)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureTemplate(ctx, attempt.TemplateVersion, attempt.Template()); err != nil {
		return nil, err
	}

	return attempt.NewPipeline(a.Ollama(), policy.AttemptPolicy(),
		attempt.WithSchemaGate(schema.NewGate()),
		attempt.WithRoutingTable(table),
		attempt.WithReceiptSink(store),
		attempt.WithExemplarSink(store),
		attempt.WithObserver(telemetry.OutcomeFanout(a.Metrics(), sink)),
		attempt.WithLogger(a.logger),
	), nil
}

// resumeSession registers a persisted session with rt so routing can
// continue it. Message history is not stored and starts empty.
func (a *app) resumeSession(ctx context.Context, rt *router.Router, id string) error {
	if id == "" {
		return nil
	}
	if _, err := rt.Sessions().Get(id); err == nil {
		return nil
	}
	store, err := a.Store(ctx)
	if err != nil {
		return err
	}
	row, err := store.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	if err != nil {
		return err
	}
	rt.Sessions().Restore(row.Snapshot())
	a.logger.Debug("session resumed", zap.String("session_id", id), zap.String("tier", row.Tier))
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

// writeJSON prints the --json envelope for command.
func (a *app) writeJSON(command string, data any) error {
	return NewJSONResponse(command, data).Write(a.out)
}

func (a *app) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
