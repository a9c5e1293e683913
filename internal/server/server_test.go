// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jeranaias/rigrun-router/internal/advisor"
	"github.com/jeranaias/rigrun-router/internal/attempt"
	"github.com/jeranaias/rigrun-router/internal/llm"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/session"
	"github.com/jeranaias/rigrun-router/internal/storage"
	"github.com/jeranaias/rigrun-router/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPrompt = "write python code function"

// Scores 10 against testPrompt.
var goodAnswer = "write python code function\n\ndef add(a, b):\n    return a + b\n\nThis helper is the whole answer and needs nothing else to run."

// =============================================================================
// FAKES
// =============================================================================

type fakeGen struct {
	text string
}

func (g *fakeGen) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	return g.text, nil
}

type fakeCompleter struct {
	err error
}

func (c *fakeCompleter) Complete(ctx context.Context, model, prompt string) (llm.Completion, error) {
	if c.err != nil {
		return llm.Completion{}, c.err
	}
	return llm.Completion{Model: model, Text: "cloud answer", InputTokens: 1000, OutputTokens: 2000}, nil
}

func (c *fakeCompleter) IsConfigured() bool { return true }

type fixture struct {
	srv     *Server
	store   *storage.Store
	reg     *prometheus.Registry
	metrics *telemetry.Metrics
}

func newFixture(t *testing.T, answer string, comp *fakeCompleter, cfg Config, opts ...Option) *fixture {
	t.Helper()

	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "routing.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	metrics := telemetry.MustNewMetrics(reg)

	adv := advisor.New(nil)
	rt := router.New(
		router.NewLocalRunner(&fakeGen{text: answer}, []string{"local-a"}, time.Second, nil),
		router.NewCloudRunner(comp, adv),
		adv,
		session.NewManager(session.DefaultConfig(), nil),
		router.WithTaskSink(store),
		router.WithSessionSink(store),
		router.WithObserver(metrics),
	)

	opts = append([]Option{WithMetrics(metrics, reg)}, opts...)
	return &fixture{
		srv:     New(rt, store, cfg, opts...),
		store:   store,
		reg:     reg,
		metrics: metrics,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error APIError `json:"error"`
}

// =============================================================================
// ROUTING ENDPOINTS
// =============================================================================

func TestProcess_LocalSuccess(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	res := decode[router.Result](t, w)
	assert.Equal(t, router.StatusLocalSuccess, res.Status)
	assert.Equal(t, "local-a", res.Model)
	assert.Equal(t, 0.0, res.Cost)
	require.NotEmpty(t, res.Session.SessionID)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = f.do(t, http.MethodGet, APIPrefix+"/session/"+res.Session.SessionID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[router.SessionStatus](t, w)
	assert.Equal(t, 1, st.TaskCount)
	assert.Equal(t, session.TierLocal, st.Tier)
}

func TestProcess_LocalLimitedListsOptions(t *testing.T) {
	f := newFixture(t, strings.Repeat("plain ", 30), &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
	require.Equal(t, http.StatusOK, w.Code)

	res := decode[router.Result](t, w)
	assert.Equal(t, router.StatusLocalLimited, res.Status)
	assert.NotEmpty(t, res.UpgradeOptions)
	require.NotNil(t, res.LocalResult)
}

func TestProcess_BadInput(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	tests := []struct {
		name string
		body any
	}{
		{"malformed json", `{"prompt":`},
		{"empty body", ""},
		{"missing prompt", ProcessRequest{}},
		{"prompt too long", ProcessRequest{Prompt: strings.Repeat("x", MaxPromptLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, APIPrefix+"/process", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrCodeBadRequest, decode[errorBody](t, w).Error.Code)
		})
	}
}

func TestProcess_BodyTooLarge(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	big := `{"prompt":"` + strings.Repeat("x", MaxRequestBodySize) + `"}`
	w := f.do(t, http.MethodPost, APIPrefix+"/process", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, ErrCodeTooLarge, decode[errorBody](t, w).Error.Code)
}

func TestProcess_UnknownSession(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt, SessionID: "nope"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, decode[errorBody](t, w).Error.Code)
}

func TestUpgrade(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[router.Result](t, w).Session.SessionID

	w = f.do(t, http.MethodPost, APIPrefix+"/upgrade", UpgradeRequest{
		SessionID: id, Prompt: testPrompt, Model: "openai/gpt-4",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[router.Result](t, w)
	assert.Equal(t, router.StatusCloudSuccess, res.Status)
	assert.Equal(t, "openai/gpt-4", res.Model)
	assert.Greater(t, res.Cost, 0.0)

	st := decode[router.SessionStatus](t, f.do(t, http.MethodGet, APIPrefix+"/session/"+id, nil))
	assert.Equal(t, session.TierCloud, st.Tier)
}

func TestUpgrade_Errors(t *testing.T) {
	cause := llm.NewTransportError("openrouter", "openai/gpt-4", llm.KindStatus, "bad gateway", nil)
	f := newFixture(t, goodAnswer, &fakeCompleter{err: cause}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/upgrade", UpgradeRequest{Prompt: testPrompt})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, APIPrefix+"/upgrade", UpgradeRequest{SessionID: "missing", Prompt: testPrompt})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
	id := decode[router.Result](t, w).Session.SessionID

	w = f.do(t, http.MethodPost, APIPrefix+"/upgrade", UpgradeRequest{SessionID: id, Prompt: testPrompt})
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, ErrCodeUpstream, decode[errorBody](t, w).Error.Code)
}

func TestEndSession(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
	id := decode[router.Result](t, w).Session.SessionID

	w = f.do(t, http.MethodPost, APIPrefix+"/session/"+id+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "Session ended successfully", body["message"])

	st := decode[router.SessionStatus](t, f.do(t, http.MethodGet, APIPrefix+"/session/"+id, nil))
	require.NotNil(t, st.EndedAt)

	w = f.do(t, http.MethodPost, APIPrefix+"/session/unknown/end", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestSession_FallsBackToHistory(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	snap := session.New("stored-1", time.Now().Add(-48*time.Hour))
	require.NoError(t, f.store.SaveSession(context.Background(), snap))

	w := f.do(t, http.MethodGet, APIPrefix+"/session/stored-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "stored-1", decode[storage.SessionRow](t, w).SessionID)

	w = f.do(t, http.MethodGet, APIPrefix+"/session/never", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// STATS, SESSIONS, HEALTH, METRICS
// =============================================================================

func TestStatsAndRecentSessions(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, APIPrefix+"/stats?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[statsResponse](t, w)
	assert.Equal(t, 7, st.Days)
	assert.Equal(t, 2, st.TotalTasks)
	assert.Equal(t, 2, st.LocalTasks)
	assert.Equal(t, 0, st.CloudTasks)
	assert.Equal(t, 2, st.Router.LocalRoutes)

	w = f.do(t, http.MethodGet, APIPrefix+"/stats?days=zero", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, APIPrefix+"/sessions/recent?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	recent := decode[struct {
		Sessions []storage.SessionRow `json:"sessions"`
	}](t, w)
	assert.Len(t, recent.Sessions, 1)

	w = f.do(t, http.MethodGet, APIPrefix+"/sessions/recent?limit=-3", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestNoHistory(t *testing.T) {
	adv := advisor.New(nil)
	rt := router.New(
		router.NewLocalRunner(&fakeGen{text: goodAnswer}, []string{"local-a"}, time.Second, nil),
		router.NewCloudRunner(&fakeCompleter{}, adv),
		adv,
		session.NewManager(session.DefaultConfig(), nil),
	)
	srv := New(rt, nil, Config{})
	f := &fixture{srv: srv}

	for _, path := range []string{"/stats", "/sessions/recent"} {
		w := f.do(t, http.MethodGet, APIPrefix+path, nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
	}

	w := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, DefaultListen, srv.Addr())
}

func TestHealth(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})
	f.do(t, http.MethodPost, APIPrefix+"/process", ProcessRequest{Prompt: testPrompt})

	w := f.do(t, http.MethodGet, APIPrefix+"/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[router.Health](t, w)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.LocalModelsConfigured)
	assert.True(t, h.CloudAPIConfigured)
	assert.Equal(t, 1, h.ActiveSessions)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "rigrun_router_active_sessions 1")
	assert.Contains(t, w.Body.String(), `rigrun_router_routes_total{status="local_success"} 1`)
}

func TestNoRoute(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})
	w := f.do(t, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeNotFound, decode[errorBody](t, w).Error.Code)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func TestRateLimit(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{RateLimit: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	f.srv.limiter.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodGet, APIPrefix+"/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := f.do(t, http.MethodGet, APIPrefix+"/health", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	body := decode[errorBody](t, w)
	assert.Equal(t, ErrCodeRateLimited, body.Error.Code)
	assert.Equal(t, 1000, body.Error.RetryAfter)

	now = now.Add(time.Second)
	w = f.do(t, http.MethodGet, APIPrefix+"/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl := NewRateLimiter(5, 0)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"), "burst is raised to 1")
	assert.Equal(t, 1, rl.Remaining("10.0.0.2"))

	now = now.Add(DefaultIdleTimeout / 2)
	require.True(t, rl.Allow("10.0.0.2"))

	now = now.Add(DefaultIdleTimeout/2 + time.Second)
	assert.Equal(t, 1, rl.Sweep())
	assert.Equal(t, 0, rl.Sweep())
}

func TestRecoveryAndRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{}, WithLogger(zap.New(core)))
	f.srv.engine.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := f.do(t, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternal, decode[errorBody](t, w).Error.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())

	f.do(t, http.MethodGet, "/missing", nil)
	f.do(t, http.MethodGet, APIPrefix+"/health", nil)
	assert.Equal(t, 1, logs.FilterMessage("client error").Len())
	assert.Equal(t, 1, logs.FilterMessage("request").Len())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{session.ErrSessionNotFound, http.StatusNotFound},
		{storage.ErrNotFound, http.StatusNotFound},
		{llm.NewTransportError("ollama", "m", llm.KindTimeout, "slow", nil), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestServeAndShutdown(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{RateLimit: 100, Burst: 100})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() { errc <- f.srv.Serve(ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + APIPrefix + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))
	require.ErrorIs(t, <-errc, http.ErrServerClosed)

	// A second shutdown is harmless.
	require.NoError(t, f.srv.Shutdown(ctx))
}

// =============================================================================
// JOBS
// =============================================================================

func TestJob_Accepted(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})
	pipeline := attempt.NewPipeline(&fakeGen{text: `{"total": 42}`}, attempt.DefaultPolicy(),
		attempt.WithReceiptSink(f.store))
	f.srv = New(f.srv.routing, f.store, Config{}, WithJobs(pipeline))

	w := f.do(t, http.MethodPost, JobsPath, JobRequest{
		Goal:   "extract the total",
		Schema: json.RawMessage(`{"type": "object", "required": ["total"]}`),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[JobResponse](t, w)
	assert.Len(t, resp.JobID, 8)
	assert.Equal(t, attempt.ReasonOKLocal, resp.Outcome)
	assert.Equal(t, "local success", resp.Summary)
	assert.JSONEq(t, `{"total": 42}`, resp.Output)
	assert.Equal(t, "default", resp.Receipt.Project)

	last, err := f.store.LastReceipt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.JobID, last.JobID)
}

func TestJob_Errors(t *testing.T) {
	f := newFixture(t, goodAnswer, &fakeCompleter{}, Config{})

	w := f.do(t, http.MethodPost, JobsPath, JobRequest{Goal: "x"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.srv = New(f.srv.routing, f.store, Config{},
		WithJobs(attempt.NewPipeline(&fakeGen{text: "ok"}, attempt.DefaultPolicy())))

	w = f.do(t, http.MethodPost, JobsPath, JobRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "goal is required", decode[errorBody](t, w).Error.Message)

	w = f.do(t, http.MethodPost, JobsPath, JobRequest{Goal: "x", BudgetCents: -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	f.srv = New(f.srv.routing, f.store, Config{Offline: true},
		WithJobs(attempt.NewPipeline(&fakeGen{text: "ok"}, attempt.DefaultPolicy())))
	w = f.do(t, http.MethodPost, JobsPath, JobRequest{Goal: "x", AllowRemote: true})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[errorBody](t, w).Error.Message, "offline")
}
