// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package offline keeps routing on the local machine.
//
// When offline mode is on, the cloud tier is replaced by a completer that
// always refuses, so routed prompts that fail locally end as limited
// results instead of paid calls. Endpoint URLs that rigrun dials itself
// (Ollama, the Redis event bus) must resolve to a loopback host.
//
// # Usage
//
//	if cfg.Cloud.Offline {
//		completer = offline.Guard()
//	}
//	if err := offline.ValidateLocalURL(cfg.Local.OllamaURL); err != nil {
//		return err
//	}
package offline
