// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package llm defines the contracts the routing core uses to reach model
// back-ends, and the transport error type those back-ends report.
//
// The core never speaks HTTP itself. It calls a Generator (single prompt in,
// text out) for local sampling and a Completer (prompt in, text plus token
// usage out) for paid cloud models. The ollama and cloud packages provide the
// production implementations; tests provide fakes.
//
// # Errors
//
// Every failure to obtain a generation is a *TransportError. Callers inspect
// it with errors.As or the IsTimeout / IsTransport helpers and must not
// substitute fallback text for it.
package llm
