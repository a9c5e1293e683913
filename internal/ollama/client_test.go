// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/llm"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, "http://127.0.0.1:11434", cfg.BaseURL)
	require.Equal(t, 120*time.Second, cfg.Timeout)
}

func TestGenerate_RequestShape(t *testing.T) {
	var got map[string]any
	var path, method, contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, method, contentType = r.URL.Path, r.Method, r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Model: "m", Response: "  hello\n", Done: true})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL + "/"})
	text, err := c.Generate(context.Background(), "llama3.2:3b", "hi", 0.2)
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	require.Equal(t, "/api/generate", path)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, "llama3.2:3b", got["model"])
	require.Equal(t, "hi", got["prompt"])
	require.Equal(t, false, got["stream"])
	require.Equal(t, map[string]any{"temperature": 0.2}, got["options"])
}

func TestGenerate_KeepWhitespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GenerateResponse{Model: "m", Response: "\n\nhello\n", Done: true})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, KeepWhitespace: true})
	text, err := c.Generate(context.Background(), "m", "hi", 0.2)
	require.NoError(t, err)
	require.Equal(t, "\n\nhello\n", text)
}

func TestGenerate_DefaultTemperatureOmitsOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Response: "ok"})
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Generate(context.Background(), "m", "p", llm.DefaultTemperature)
	require.NoError(t, err)
	require.NotContains(t, got, "options")
}

func TestGenerate_ZeroTemperatureIsSent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(GenerateResponse{Response: "ok"})
	}))
	defer srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Generate(context.Background(), "m", "p", 0)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"temperature": 0.0}, got["options"])
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind llm.ErrorKind
		wantMsg  string
	}{
		{"model missing", http.StatusNotFound, `{"error":"model 'x' not found"}`, llm.KindModelNotFound, "model 'x' not found"},
		{"server error", http.StatusInternalServerError, `oops`, llm.KindStatus, "500 Internal Server Error"},
		{"bad json", http.StatusOK, `{not json`, llm.KindDecode, "failed to decode response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Generate(context.Background(), "x", "p", 0.2)
			require.Error(t, err)
			require.Equal(t, tt.wantKind, llm.KindOf(err))
			require.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestGenerate_NotRunning(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(ClientConfig{BaseURL: url}).Generate(context.Background(), "m", "p", 0.2)
	require.Equal(t, llm.KindNotRunning, llm.KindOf(err))
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(ClientConfig{BaseURL: srv.URL}).Generate(ctx, "m", "p", 0.2)
	require.True(t, llm.IsTimeout(err), "got %v", err)
}

func TestCheckRunningAndListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte("Ollama is running"))
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(ListModelsResponse{Models: []ModelInfo{{Name: "llama3.2:3b"}, {Name: "gemma2:latest"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	require.NoError(t, c.CheckRunning(context.Background()))

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "gemma2:latest", models[1].Name)
}

func TestGenerate_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GenerateResponse{Response: "ok"})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL, RequestsPerSecond: 0.001})
	_, err := c.Generate(context.Background(), "m", "p", 0.2)
	require.NoError(t, err, "first request uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "m", "p", 0.2)
	require.Error(t, err)
	require.True(t, llm.IsTransport(err))
}
