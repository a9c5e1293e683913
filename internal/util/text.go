// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
)

// CharLen returns the number of characters (runes) in s.
func CharLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ClipChars returns the first n characters of s. No ellipsis is added, so the
// result is always a prefix of s.
func ClipChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Ellipsize truncates s to at most width terminal columns, replacing the tail
// with "..." when it does not fit. Wide (CJK) characters count as two columns.
func Ellipsize(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
