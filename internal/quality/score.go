// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package quality

import (
	"strings"
	"unicode/utf8"
)

const (
	// Base is the starting score before adjustments.
	Base = 5.0
	// Max is the upper clamp.
	Max = 10.0

	// LongResponsePenalty is subtracted for responses over LongResponseChars.
	LongResponsePenalty = 0.5
	// LongResponseChars is the length above which a response is penalized.
	LongResponseChars = 5000

	shortResponsePenalty = 2.0
	shortResponseChars   = 50
	minResponseChars     = 10

	codeBonus      = 1.5
	structureBonus = 1.0
	overlapWeight  = 1.5
)

var (
	codeIntentWords = []string{"code", "function", "implement", "script", "program"}
	codeMarkers     = []string{"def ", "function ", "class ", "import ", "const ", "let "}
)

// Score rates response as an answer to prompt. Lengths are counted in
// characters. The result is clamped to [0, 10].
func Score(response, prompt string) float64 {
	n := utf8.RuneCountInString(response)
	if n < minResponseChars {
		return 0
	}

	score := Base

	switch {
	case n > 100 && n < 2000:
		score += 1.0
	case n > 50 && n < 3000:
		score += 0.5
	}

	if hasCodeIntent(prompt) && hasCode(response) {
		score += codeBonus
	}

	if strings.Contains(response, "\n\n") || strings.Contains(response, "- ") || strings.Contains(response, "* ") {
		score += structureBonus
	}

	score += overlapWeight * keywordOverlap(prompt, response)

	if n < shortResponseChars {
		score -= shortResponsePenalty
	}
	if n > LongResponseChars {
		score -= LongResponsePenalty
	}

	return clamp(score)
}

func hasCodeIntent(prompt string) bool {
	lower := strings.ToLower(prompt)
	for _, w := range codeIntentWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func hasCode(response string) bool {
	if strings.Contains(response, "```") {
		return true
	}
	for _, m := range codeMarkers {
		if strings.Contains(response, m) {
			return true
		}
	}
	return false
}

// keywordOverlap is the fraction of distinct prompt words longer than three
// characters that also appear as words in the response.
func keywordOverlap(prompt, response string) float64 {
	promptWords := make(map[string]struct{})
	for _, w := range strings.Fields(prompt) {
		if utf8.RuneCountInString(w) > 3 {
			promptWords[strings.ToLower(w)] = struct{}{}
		}
	}
	if len(promptWords) == 0 {
		return 0
	}

	responseWords := make(map[string]struct{})
	for _, w := range strings.Fields(response) {
		responseWords[strings.ToLower(w)] = struct{}{}
	}

	shared := 0
	for w := range promptWords {
		if _, ok := responseWords[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(promptWords))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > Max {
		return Max
	}
	return v
}
