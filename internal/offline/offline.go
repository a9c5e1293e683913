// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package offline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jeranaias/rigrun-router/internal/llm"
)

var (
	// ErrCloudBlocked is the cause of every cloud call made in offline mode.
	ErrCloudBlocked = errors.New("cloud models are disabled in offline mode")

	// ErrNonLocalhost is returned for endpoints outside the loopback range.
	ErrNonLocalhost = errors.New("only localhost connections are allowed in offline mode")
)

// =============================================================================
// HOST CHECKS
// =============================================================================

// IsLocalhost reports whether host (optionally with a port) names the
// local machine: "localhost" or any loopback address.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// ValidateLocalURL returns ErrNonLocalhost unless raw points at a loopback
// host. unix:// URLs are always local.
func ValidateLocalURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme == "unix" {
		return nil
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q has no host", ErrNonLocalhost, raw)
	}
	if !IsLocalhost(u.Host) {
		return fmt.Errorf("%w: %s", ErrNonLocalhost, u.Hostname())
	}
	return nil
}

// =============================================================================
// CLOUD GUARD
// =============================================================================

type guard struct{}

// Guard returns a cloud completer that always refuses. It reports itself as
// not configured and fails every call with a not-configured transport error
// wrapping ErrCloudBlocked.
func Guard() llm.Completer {
	return guard{}
}

func (guard) IsConfigured() bool { return false }

func (guard) Complete(ctx context.Context, model, prompt string) (llm.Completion, error) {
	return llm.Completion{}, llm.NewTransportError("offline", model, llm.KindNotConfigured, "cloud call blocked", ErrCloudBlocked)
}
