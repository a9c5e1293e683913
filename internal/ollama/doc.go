// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for the local Ollama server.
//
// The client implements llm.Generator over the non-streaming
// /api/generate endpoint. Every failure is returned as an
// *llm.TransportError so callers can tell an unreachable server from a
// missing model or a timeout.
//
// # Usage
//
//	client := ollama.NewClient(ollama.DefaultConfig())
//	text, err := client.Generate(ctx, "llama3.2:3b", prompt, 0.2)
//	if llm.KindOf(err) == llm.KindNotRunning {
//	    // start ollama serve
//	}
//
// Requests are paced by a token-bucket limiter when RequestsPerSecond is
// set, which keeps k-sample bursts from queueing inside the server.
package ollama
