// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/rigrun-router/internal/llm"
)

const backendName = "ollama"

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the Ollama API base URL (default: http://127.0.0.1:11434)
	// Note: Uses explicit IPv4 address instead of localhost to avoid IPv6 resolution issues on Windows
	BaseURL string

	// Timeout bounds each request (default: 120s)
	Timeout time.Duration

	// RequestsPerSecond paces generation calls. Zero means unlimited.
	RequestsPerSecond float64

	// HTTPClient overrides the default client. Its Timeout is left as is.
	HTTPClient *http.Client

	// KeepWhitespace returns responses untrimmed, as the model produced them.
	KeepWhitespace bool
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://127.0.0.1:11434",
		Timeout: 120 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to one Ollama server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	trim       bool
}

// NewClient creates a client, filling zero config fields with defaults.
func NewClient(cfg ClientConfig) *Client {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		trim:       !cfg.KeepWhitespace,
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate runs one non-streaming completion and returns the trimmed text.
// A negative temperature omits options so the model default applies.
func (c *Client) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", llm.NewTransportError(backendName, model, llm.KindUnknown, "rate limiter wait", err)
	}

	reqBody := GenerateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
	}
	if temperature >= 0 {
		reqBody.Options = &Options{Temperature: temperature}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", llm.NewTransportError(backendName, model, llm.KindUnknown, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", llm.NewTransportError(backendName, model, llm.KindUnknown, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.doError(model, err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", statusError(model, resp)
	}

	var result GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", llm.NewTransportError(backendName, model, llm.KindDecode, "failed to decode response", err)
	}

	if c.trim {
		return strings.TrimSpace(result.Response), nil
	}
	return result.Response, nil
}

// =============================================================================
// HEALTH CHECK
// =============================================================================

// CheckRunning verifies that Ollama is reachable and running.
func (c *Client) CheckRunning(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return llm.NewTransportError(backendName, "", llm.KindUnknown, "failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.doError("", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return statusError("", resp)
	}
	return nil
}

// ListModels retrieves all installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, llm.NewTransportError(backendName, "", llm.KindUnknown, "failed to create request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.doError("", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("", resp)
	}

	var result ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, llm.NewTransportError(backendName, "", llm.KindDecode, "failed to decode response", err)
	}
	return result.Models, nil
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// doError classifies a failed round trip. Deadlines are timeouts, anything
// else means the server could not be reached.
func (c *Client) doError(model string, err error) error {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return llm.NewTransportError(backendName, model, llm.KindTimeout, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return llm.NewTransportError(backendName, model, llm.KindUnknown, "request canceled", err)
	}
	return llm.NewTransportError(backendName, model, llm.KindNotRunning,
		fmt.Sprintf("Ollama is not running at %s", c.baseURL), err)
}

func statusError(model string, resp *http.Response) error {
	msg := resp.Status
	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}

	kind := llm.KindStatus
	if resp.StatusCode == http.StatusNotFound {
		kind = llm.KindModelNotFound
	}
	te := llm.NewTransportError(backendName, model, kind, msg, nil)
	te.Status = resp.StatusCode
	return te
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(r io.ReadCloser) {
	io.Copy(io.Discard, r)
	r.Close()
}
