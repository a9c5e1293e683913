// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package consensus

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Normalize returns the comparison key for a candidate. It is only used for
// grouping equal answers and is never shown to callers.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if canon, ok := canonicalJSON(s); ok {
		return canon
	}
	return strings.Join(strings.Fields(s), " ")
}

// canonicalJSON re-encodes s with sorted object keys and no insignificant
// whitespace. Numbers keep their literal spelling.
func canonicalJSON(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	// A second value (or garbage) after the document is not valid JSON.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return "", false
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", false
	}
	return strings.TrimSuffix(buf.String(), "\n"), true
}
