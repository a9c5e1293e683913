// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind categorizes transport failures for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotConfigured
	KindNotRunning
	KindTimeout
	KindModelNotFound
	KindStatus
	KindDecode
)

// String returns the lowercase name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "not_configured"
	case KindNotRunning:
		return "not_running"
	case KindTimeout:
		return "timeout"
	case KindModelNotFound:
		return "model_not_found"
	case KindStatus:
		return "bad_status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// TransportError reports that a generation call did not produce text.
type TransportError struct {
	Backend string
	Model   string
	Kind    ErrorKind
	Status  int
	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Backend, e.Kind, e.Message)
	if e.Model != "" {
		msg = fmt.Sprintf("%s [%s] %s: %s", e.Backend, e.Model, e.Kind, e.Message)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError builds a TransportError, classifying context deadline
// causes as timeouts.
func NewTransportError(backend, model string, kind ErrorKind, message string, cause error) *TransportError {
	if kind == KindUnknown && errors.Is(cause, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &TransportError{
		Backend: backend,
		Model:   model,
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// IsTransport reports whether err is or wraps a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind == KindTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// KindOf returns the transport kind of err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}
