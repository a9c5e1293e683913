// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/session"
)

// Message formats.
const (
	localSuccessMessage = "Local model %s achieved %.1f/10 quality"
	localLimitedMessage = "Local best: %.1f/10. Upgrade options available."
)

// localRunning is implemented by generators that can report reachability.
type localRunning interface {
	CheckRunning(ctx context.Context) error
}

// =============================================================================
// ROUTER
// =============================================================================

// Router routes prompts local-first and owns the session lifecycle.
type Router struct {
	local    *LocalRunner
	cloud    *CloudRunner
	advisor  *advisor.Advisor
	sessions *session.Manager

	thresholds   Thresholds
	defaultModel string
	taskSink     TaskSink
	sessionSink  SessionSink
	observer     Observer
	stats        *Stats
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithThresholds overrides the quality bands.
func WithThresholds(t Thresholds) Option {
	return func(r *Router) { r.thresholds = t }
}

// WithDefaultCloudModel sets the model used for manual upgrades when
// nothing ranks and for pricing the spend avoided by local answers.
func WithDefaultCloudModel(model string) Option {
	return func(r *Router) {
		if model != "" {
			r.defaultModel = model
		}
	}
}

// WithTaskSink sets where task rows are written.
func WithTaskSink(s TaskSink) Option {
	return func(r *Router) { r.taskSink = s }
}

// WithSessionSink sets where session rows are written.
func WithSessionSink(s SessionSink) Option {
	return func(r *Router) { r.sessionSink = s }
}

// WithObserver sets the route observer.
func WithObserver(o Observer) Option {
	return func(r *Router) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the time source for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a router. A nil advisor uses the default pricing table and a
// nil manager uses the default session config.
func New(local *LocalRunner, cloud *CloudRunner, adv *advisor.Advisor, sessions *session.Manager, opts ...Option) *Router {
	if adv == nil {
		adv = advisor.New(nil)
	}
	if cloud == nil {
		cloud = NewCloudRunner(nil, adv)
	}
	r := &Router{
		local:        local,
		cloud:        cloud,
		advisor:      adv,
		sessions:     sessions,
		thresholds:   DefaultThresholds(),
		defaultModel: DefaultCloudModel,
		stats:        NewStats(),
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sessions == nil {
		r.sessions = session.NewManager(session.DefaultConfig(), r.logger)
	}
	r.logger = r.logger.Named("router")
	return r
}

// Sessions returns the session manager.
func (r *Router) Sessions() *session.Manager {
	return r.sessions
}

// Advisor returns the pricing advisor.
func (r *Router) Advisor() *advisor.Advisor {
	return r.advisor
}

// Thresholds returns the quality bands in use.
func (r *Router) Thresholds() Thresholds {
	return r.thresholds
}

// Stats returns a copy of the cumulative routing statistics.
func (r *Router) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// =============================================================================
// ROUTING
// =============================================================================

// Route answers prompt local-first.
//
// An empty sessionID starts a new session; an unknown one returns
// session.ErrSessionNotFound. When the best local answer reaches the
// quality target it is returned at zero cost. Otherwise the upgrade options
// are ranked; with autoUpgrade the best option is run in the cloud, falling
// back to the local answer if that fails.
func (r *Router) Route(ctx context.Context, prompt, sessionID string, autoUpgrade bool) (*Result, error) {
	start := r.now()

	snap, err := r.getOrCreate(sessionID)
	if err != nil {
		return nil, err
	}

	local := r.local.Best(ctx, prompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if local.Quality >= r.thresholds.Target {
		return r.finish(ctx, start, prompt, func() (*Result, error) {
			return r.localSuccess(ctx, snap.ID, prompt, local, 0)
		})
	}

	options := r.advisor.Rank(prompt, local.Quality)
	var analysis *session.Analysis
	if len(options) > 0 {
		a := session.Analyze(snap, r.sessions.Config(), options[0].EstimatedCost)
		analysis = &a
	}

	if autoUpgrade && len(options) > 0 {
		best := options[0]
		cloud, err := r.cloud.Run(ctx, prompt, best.Model)
		if err != nil {
			r.logger.Warn("cloud upgrade failed, keeping local result",
				zap.String("session_id", snap.ID),
				zap.String("model", best.Model),
				zap.Error(err))
			return r.finish(ctx, start, prompt, func() (*Result, error) {
				return r.localSuccess(ctx, snap.ID, prompt, local, best.EstimatedCost)
			})
		}
		return r.finish(ctx, start, prompt, func() (*Result, error) {
			return r.cloudSuccess(ctx, snap.ID, prompt, local, cloud, best.EstimatedCost)
		})
	}

	return r.finish(ctx, start, prompt, func() (*Result, error) {
		return r.localLimited(ctx, snap.ID, prompt, local, options, analysis)
	})
}

// UpgradeToCloud runs prompt on a paid model for an existing session. An
// empty model uses the best ranked option, or the default cloud model when
// none rank. The local models are rerun so the task row carries the comparison.
func (r *Router) UpgradeToCloud(ctx context.Context, sessionID, prompt, model string) (*Result, error) {
	start := r.now()

	if _, err := r.sessions.Get(sessionID); err != nil {
		return nil, err
	}

	local := r.local.Best(ctx, prompt)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if model == "" {
		model = r.defaultModel
		if options := r.advisor.Rank(prompt, local.Quality); len(options) > 0 {
			model = options[0].Model
		}
	}

	cloud, err := r.cloud.Run(ctx, prompt, model)
	if err != nil {
		return nil, fmt.Errorf("router: cloud model failed: %w", err)
	}

	return r.finish(ctx, start, prompt, func() (*Result, error) {
		return r.cloudSuccess(ctx, sessionID, prompt, local, cloud, r.advisor.EstimateCost(prompt, model))
	})
}

func (r *Router) getOrCreate(id string) (session.Snapshot, error) {
	if id == "" {
		return r.sessions.Create(), nil
	}
	return r.sessions.Get(id)
}

// finish runs the terminal step, then records stats and notifies the
// observer.
func (r *Router) finish(ctx context.Context, start time.Time, prompt string, step func() (*Result, error)) (*Result, error) {
	res, err := step()
	if err != nil {
		return nil, err
	}

	avoided := 0.0
	if res.Status != StatusCloudSuccess {
		avoided = r.advisor.EstimateCost(prompt, r.defaultModel)
	}
	r.stats.Record(res, avoided)

	elapsed := r.now().Sub(start)
	if r.observer != nil {
		r.observer.ObserveRoute(ctx, res, elapsed)
	}
	r.logger.Info("prompt routed",
		zap.String("session_id", res.Session.SessionID),
		zap.String("status", string(res.Status)),
		zap.String("model", res.Model),
		zap.Float64("quality", res.Quality),
		zap.Float64("cost", res.Cost),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

// =============================================================================
// TERMINAL STEPS
// =============================================================================

func (r *Router) localSuccess(ctx context.Context, id, prompt string, local LocalResult, predicted float64) (*Result, error) {
	snap, err := r.recordLocal(ctx, id, prompt, local, predicted)
	if err != nil {
		return nil, err
	}
	return &Result{
		Status:       StatusLocalSuccess,
		Response:     local.Response,
		Model:        local.Model,
		Quality:      local.Quality,
		Cost:         0,
		ResponseTime: local.ResponseTime,
		Session:      snap.Info(),
		Message:      fmt.Sprintf(localSuccessMessage, local.Model, local.Quality),
	}, nil
}

func (r *Router) localLimited(ctx context.Context, id, prompt string, local LocalResult, options []advisor.UpgradeOption, analysis *session.Analysis) (*Result, error) {
	var predicted float64
	if len(options) > 0 {
		predicted = options[0].EstimatedCost
	}
	snap, err := r.recordLocal(ctx, id, prompt, local, predicted)
	if err != nil {
		return nil, err
	}
	lr := local
	lr.Cost = 0
	return &Result{
		Status:         StatusLocalLimited,
		Quality:        local.Quality,
		Session:        snap.Info(),
		Message:        fmt.Sprintf(localLimitedMessage, local.Quality),
		LocalResult:    &lr,
		UpgradeOptions: options,
		Analysis:       analysis,
	}, nil
}

func (r *Router) cloudSuccess(ctx context.Context, id, prompt string, local LocalResult, cloud CloudResult, predicted float64) (*Result, error) {
	cfg := r.sessions.Config()
	msg := session.Message{
		Prompt:    prompt,
		Response:  cloud.Response,
		Model:     cloud.Model,
		Cost:      cloud.Cost,
		Quality:   cloud.Quality,
		Timestamp: r.now(),
	}
	snap, intents, err := r.sessions.Apply(id, func(s session.Snapshot) (session.Snapshot, []session.Intent) {
		s, up := session.UpgradeToCloud(s, cfg)
		s, add := session.AddTask(s, msg)
		return s, session.Coalesce(up, add)
	})
	if err != nil {
		return nil, err
	}

	r.persist(ctx, snap, intents, TaskRecord{
		SessionID:     id,
		Prompt:        prompt,
		Response:      cloud.Response,
		LocalModel:    local.Model,
		LocalQuality:  local.Quality,
		CloudModel:    cloud.Model,
		CloudQuality:  cloud.Quality,
		FinalModel:    cloud.Model,
		Decision:      DecisionCloud,
		ActualCost:    cloud.Cost,
		PredictedCost: predicted,
		InputTokens:   cloud.InputTokens,
		OutputTokens:  cloud.OutputTokens,
		ResponseTime:  cloud.ResponseTime,
		Timestamp:     msg.Timestamp,
	})

	return &Result{
		Status:       StatusCloudSuccess,
		Response:     cloud.Response,
		Model:        cloud.Model,
		Quality:      cloud.Quality,
		Cost:         cloud.Cost,
		ResponseTime: cloud.ResponseTime,
		Session:      snap.Info(),
		inputTokens:  cloud.InputTokens,
		outputTokens: cloud.OutputTokens,
	}, nil
}

// recordLocal adds a zero-cost local task to the session and persists it.
func (r *Router) recordLocal(ctx context.Context, id, prompt string, local LocalResult, predicted float64) (session.Snapshot, error) {
	msg := session.Message{
		Prompt:    prompt,
		Response:  local.Response,
		Model:     local.Model,
		Cost:      0,
		Quality:   local.Quality,
		Timestamp: r.now(),
	}
	snap, intents, err := r.sessions.Apply(id, func(s session.Snapshot) (session.Snapshot, []session.Intent) {
		return session.AddTask(s, msg)
	})
	if err != nil {
		return session.Snapshot{}, err
	}

	r.persist(ctx, snap, intents, TaskRecord{
		SessionID:     id,
		Prompt:        prompt,
		Response:      local.Response,
		LocalModel:    local.Model,
		LocalQuality:  local.Quality,
		FinalModel:    local.Model,
		Decision:      DecisionLocal,
		PredictedCost: predicted,
		ResponseTime:  local.ResponseTime,
		Timestamp:     msg.Timestamp,
	})
	return snap, nil
}

// persist carries out session intents in order. Failures are logged.
func (r *Router) persist(ctx context.Context, snap session.Snapshot, intents []session.Intent, task TaskRecord) {
	for _, in := range intents {
		var err error
		switch in {
		case session.IntentPersistTask:
			if r.taskSink != nil {
				err = r.taskSink.SaveTask(ctx, task)
			}
		case session.IntentPersistSession:
			if r.sessionSink != nil {
				err = r.sessionSink.SaveSession(ctx, snap)
			}
		}
		if err != nil {
			r.logger.Error("failed to persist routing state",
				zap.String("session_id", snap.ID),
				zap.Stringer("intent", in),
				zap.Error(err))
		}
	}
}

// =============================================================================
// SESSIONS AND HEALTH
// =============================================================================

// SessionStatus returns the state of session id.
func (r *Router) SessionStatus(id string) (SessionStatus, error) {
	s, err := r.sessions.Get(id)
	if err != nil {
		return SessionStatus{}, err
	}
	return SessionStatus{
		SessionID: s.ID,
		Tier:      s.Tier,
		TaskCount: s.TaskCount,
		TotalCost: s.TotalCost,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}, nil
}

// EndSession ends session id and persists the final session row.
func (r *Router) EndSession(ctx context.Context, id string) error {
	snap, intents, err := r.sessions.End(id)
	if err != nil {
		return err
	}
	r.persist(ctx, snap, intents, TaskRecord{})
	return nil
}

// Health reports configuration and, when the local generator supports it,
// whether the local back-end answers.
func (r *Router) Health(ctx context.Context) Health {
	h := Health{
		Status:                "healthy",
		LocalModelsConfigured: len(r.local.models),
		CloudAPIConfigured:    r.cloud.IsConfigured(),
		ActiveSessions:        r.sessions.Count(),
	}
	if lr, ok := r.local.gen.(localRunning); ok {
		running := lr.CheckRunning(ctx) == nil
		h.LocalRunning = &running
		if !running {
			h.Status = "degraded"
		}
	}
	return h
}
