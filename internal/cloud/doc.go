// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides OpenRouter integration for paid cloud inference.
//
// OpenRouter exposes many providers (Claude, GPT-4 and others) behind one
// chat completions API. The router uses this package only after the local
// tier has fallen short, so every call here costs money and reports the
// token usage needed to price it.
//
// # Key Types
//
//   - Client: chat completions client with retry and backoff
//   - ChatMessage, ChatRequest, ChatResponse: wire types
//
// # Usage
//
//	client := cloud.NewClient(apiKey).WithLogger(logger)
//	c, err := client.Complete(ctx, "anthropic/claude-3.5-sonnet", prompt)
//
// API keys are never logged; use APIKeyMasked for display.
package cloud
