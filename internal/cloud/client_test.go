// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/llm"
)

func okResponse(content string) ChatResponse {
	return ChatResponse{
		ID:      "gen-1",
		Model:   "anthropic/claude-3.5-sonnet",
		Choices: []Choice{{Message: ChatMessage{Role: "assistant", Content: content}, FinishReason: "stop"}},
		Usage:   Usage{PromptTokens: 120, CompletionTokens: 300, TotalTokens: 420},
	}
}

func TestComplete_RequestAndUsage(t *testing.T) {
	var got ChatRequest
	var path, auth, title string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, auth, title = r.URL.Path, r.Header.Get("Authorization"), r.Header.Get("X-Title")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(okResponse("  the answer \n"))
	}))
	defer srv.Close()

	c := NewClient("sk-or-test").WithBaseURL(srv.URL + "/")
	comp, err := c.Complete(context.Background(), "anthropic/claude-3.5-sonnet", "question")
	require.NoError(t, err)

	require.Equal(t, "/chat/completions", path)
	require.Equal(t, "Bearer sk-or-test", auth)
	require.Equal(t, "rigrun", title)
	require.Equal(t, "anthropic/claude-3.5-sonnet", got.Model)
	require.Equal(t, CompletionMaxTokens, got.MaxTokens)
	require.False(t, got.Stream)
	require.Equal(t, []ChatMessage{{Role: "user", Content: "question"}}, got.Messages)

	require.Equal(t, "the answer", comp.Text)
	require.Equal(t, "anthropic/claude-3.5-sonnet", comp.Model)
	require.Equal(t, 120, comp.InputTokens)
	require.Equal(t, 300, comp.OutputTokens)
}

func TestComplete_NotConfigured(t *testing.T) {
	c := NewClient("   ")
	require.False(t, c.IsConfigured())

	_, err := c.Complete(context.Background(), "m", "p")
	require.ErrorIs(t, err, ErrNotConfigured)
	require.Equal(t, llm.KindNotConfigured, llm.KindOf(err))
}

func TestComplete_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("k").WithBaseURL(srv.URL).Complete(context.Background(), "m", "p")
	require.ErrorIs(t, err, ErrEmptyResponse)
	require.Equal(t, llm.KindDecode, llm.KindOf(err))
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		want     error
		wantKind llm.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":401,"message":"bad key"}}`, ErrAuthFailed, llm.KindStatus},
		{"credits", http.StatusPaymentRequired, `{"error":{"message":"top up"}}`, ErrInsufficientCredits, llm.KindStatus},
		{"model", http.StatusNotFound, `not json`, ErrModelNotFound, llm.KindModelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k").WithBaseURL(srv.URL).WithRetryDelay(0).
				Complete(context.Background(), "m", "p")
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, tt.wantKind, llm.KindOf(err))

			var te *llm.TransportError
			require.True(t, errors.As(err, &te))
			require.Equal(t, tt.status, te.Status)
			require.Equal(t, int32(1), calls.Load(), "client errors are not retried")
		})
	}
}

func TestChat_APIErrorCode(t *testing.T) {
	err := handleErrorResponse("m", http.StatusBadRequest, []byte(`{"error":{"code":"context_length","message":"too long"}}`))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "context_length", apiErr.Code)
	require.Equal(t, "too long", apiErr.Message)
	require.Contains(t, apiErr.Error(), "[context_length] (HTTP 400)")
}

func TestChat_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(okResponse("recovered"))
	}))
	defer srv.Close()

	comp, err := NewClient("k").WithBaseURL(srv.URL).WithRetryDelay(0).
		Complete(context.Background(), "m", "p")
	require.NoError(t, err)
	require.Equal(t, "recovered", comp.Text)
	require.Equal(t, int32(3), calls.Load())
}

func TestChat_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient("k").WithBaseURL(srv.URL).WithRetryDelay(0).WithMaxRetries(2).
		Complete(context.Background(), "m", "p")
	require.ErrorIs(t, err, ErrRateLimited)
	require.True(t, strings.HasPrefix(err.Error(), "max retries exceeded"))
	require.Equal(t, int32(2), calls.Load())
}

func TestChat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient("k").WithBaseURL(url).Complete(context.Background(), "m", "p")
	require.Error(t, err)
	require.True(t, llm.IsTransport(err))
}

func TestAPIKeyMasked(t *testing.T) {
	require.Equal(t, "(not set)", NewClient("").APIKeyMasked())

	masked := NewClient("sk-or-v1-secretsecret").APIKeyMasked()
	require.True(t, strings.HasPrefix(masked, "sk-or-****"))
	require.NotContains(t, masked, "secret")
	require.Len(t, masked, len("sk-or-****")+8)
	require.NotEqual(t, masked, NewClient("sk-or-v1-othersecret").APIKeyMasked())
}

func TestBackoffCapped(t *testing.T) {
	c := NewClient("k")
	require.Equal(t, DefaultRetryDelay, c.backoff(1))
	require.Equal(t, 2*DefaultRetryDelay, c.backoff(2))
	require.Equal(t, retryMaxDelay, c.backoff(10))
}
