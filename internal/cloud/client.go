// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/llm"
)

// Configuration constants for OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for exponential backoff.
	DefaultRetryDelay = 500 * time.Millisecond

	// retryMaxDelay is the maximum delay for exponential backoff.
	retryMaxDelay = 10 * time.Second

	// CompletionMaxTokens caps output tokens for a routed completion.
	CompletionMaxTokens = 4000

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024

	backendName = "openrouter"
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is a client for the OpenRouter chat completions API.
// Builders return the same client and must be called before first use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	siteURL    string
	siteName   string
	logger     *zap.Logger
}

// NewClient creates a new OpenRouter client with the given API key.
//
// An empty key still yields a client; requests then fail with
// ErrNotConfigured.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    DefaultOpenRouterURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		siteURL:    "https://rigrun.local",
		siteName:   "rigrun",
		logger:     zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

// WithTimeout sets the per-request timeout.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	if timeout > 0 {
		c.httpClient.Timeout = timeout
	}
	return c
}

// WithMaxRetries sets the number of attempts for transient errors.
func (c *Client) WithMaxRetries(n int) *Client {
	if n > 0 {
		c.maxRetries = n
	}
	return c
}

// WithRetryDelay sets the base backoff delay.
func (c *Client) WithRetryDelay(d time.Duration) *Client {
	if d >= 0 {
		c.retryDelay = d
	}
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// WithLogger sets the logger used for retry diagnostics.
func (c *Client) WithLogger(logger *zap.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIKeyMasked returns a display-safe form of the key.
func (c *Client) APIKeyMasked() string {
	if c.apiKey == "" {
		return "(not set)"
	}
	return "sk-or-****" + keyFingerprint(c.apiKey)
}

// keyFingerprint returns a short hash so keys can be told apart without
// revealing any of their characters.
func keyFingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// Complete runs a single-prompt completion against model and reports usage.
func (c *Client) Complete(ctx context.Context, model, prompt string) (llm.Completion, error) {
	start := time.Now()
	resp, err := c.Chat(ctx, ChatRequest{
		Model:     model,
		Messages:  []ChatMessage{NewUserMessage(prompt)},
		MaxTokens: CompletionMaxTokens,
	})
	if err != nil {
		return llm.Completion{}, err
	}

	if len(resp.Choices) == 0 {
		return llm.Completion{}, llm.NewTransportError(backendName, model, llm.KindDecode, "no choices in response", ErrEmptyResponse)
	}

	name := resp.Model
	if name == "" {
		name = model
	}
	return llm.Completion{
		Model:        name,
		Text:         strings.TrimSpace(resp.GetContent()),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Latency:      time.Since(start),
	}, nil
}

// Chat performs a chat completion request.
//
// Rate limiting and 5xx responses are retried with exponential backoff.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if !c.IsConfigured() {
		return nil, llm.NewTransportError(backendName, req.Model, llm.KindNotConfigured, "no API key", ErrNotConfigured)
	}
	req.Stream = false

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt)
			c.logger.Debug("retrying cloud request",
				zap.String("model", req.Model),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, llm.NewTransportError(backendName, req.Model, llm.KindUnknown, "canceled during backoff", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := c.doRequest(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	c.logger.Warn("cloud request retries exhausted",
		zap.String("model", req.Model),
		zap.Int("attempts", c.maxRetries),
		zap.Error(lastErr))
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, reqBody ChatRequest) (*ChatResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, llm.NewTransportError(backendName, reqBody.Model, llm.KindUnknown, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, llm.NewTransportError(backendName, reqBody.Model, llm.KindUnknown, "failed to create request", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		kind := llm.KindUnknown
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = llm.KindTimeout
		}
		return nil, llm.NewTransportError(backendName, reqBody.Model, kind, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return nil, llm.NewTransportError(backendName, reqBody.Model, llm.KindDecode, "failed to read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(reqBody.Model, resp.StatusCode, body)
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, llm.NewTransportError(backendName, reqBody.Model, llm.KindDecode, "failed to parse response", err)
	}
	return &chatResp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rigrun-router/1.0")
	if c.siteURL != "" {
		req.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		req.Header.Set("X-Title", c.siteName)
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts an HTTP error response to a transport error
// wrapping the matching sentinel.
func handleErrorResponse(model string, status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		if parsed.Error.Code != nil {
			apiErr.Code = fmt.Sprint(parsed.Error.Code)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	var (
		kind  = llm.KindStatus
		cause error
	)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = ErrAuthFailed
	case http.StatusPaymentRequired:
		cause = ErrInsufficientCredits
	case http.StatusNotFound:
		kind = llm.KindModelNotFound
		cause = ErrModelNotFound
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	default:
		cause = apiErr
	}

	te := llm.NewTransportError(backendName, model, kind, apiErr.Message, cause)
	te.Status = status
	return te
}

// isRetryable reports whether err is rate limiting or a server error.
func isRetryable(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 && apiErr.Status < 600
	}
	return false
}
