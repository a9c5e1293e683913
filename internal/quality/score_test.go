// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScore_ShortCircuits(t *testing.T) {
	require.Equal(t, 0.0, Score("", "anything"))
	require.Equal(t, 0.0, Score("too short", "anything"))
	require.Equal(t, 0.0, Score("日本語の答え", "question"))
}

func TestScore_Bands(t *testing.T) {
	tests := []struct {
		name     string
		response string
		prompt   string
		want     float64
	}{
		// 20 chars: base, short penalty.
		{"short", strings.Repeat("x", 20), "q", 3.0},
		// 60 chars: +0.5 band.
		{"lower band", strings.Repeat("x", 60), "q", 5.5},
		// 150 chars: +1.0 band.
		{"middle band", strings.Repeat("x", 150), "q", 6.0},
		// 2500 chars: +0.5 band.
		{"upper band", strings.Repeat("x", 2500), "q", 5.5},
		// 4000 chars: no band bonus.
		{"no band", strings.Repeat("x", 4000), "q", 5.0},
		// 6000 chars: long penalty.
		{"long", strings.Repeat("x", 6000), "q", 4.5},
		// Band edges are exclusive.
		{"exactly 100", strings.Repeat("x", 100), "q", 5.5},
		{"exactly 50", strings.Repeat("x", 50), "q", 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, Score(tt.response, tt.prompt), 1e-9)
		})
	}
}

func TestScore_LongResponsePenalty(t *testing.T) {
	long := strings.Repeat("y", 6000)
	require.LessOrEqual(t, Score(long, "summarize this"), Base-LongResponsePenalty)
}

func TestScore_CodeBonus(t *testing.T) {
	body := strings.Repeat("z", 140)
	withCode := body + "\n```go\nfmt.Println()\n```"
	withKeyword := "def main():\n" + body

	// Code prompt with a fence: +1.0 band, +1.5 code.
	require.InDelta(t, 7.5, Score(withCode, "Write code"), 1e-9)
	// Language keyword counts too.
	require.InDelta(t, 7.5, Score(withKeyword, "Implement it"), 1e-9)
	// No code intent in the prompt: no bonus.
	require.InDelta(t, 6.0, Score(withCode, "Explain"), 1e-9)
}

func TestScore_StructureBonus(t *testing.T) {
	body := strings.Repeat("w", 140)
	require.InDelta(t, 7.0, Score(body+"\n\n"+body, "q"), 1e-9)
	require.InDelta(t, 7.0, Score("- "+body, "q"), 1e-9)
	require.InDelta(t, 7.0, Score("* "+body, "q"), 1e-9)
}

func TestScore_KeywordOverlap(t *testing.T) {
	prompt := "Describe Paris weather today"
	// Content words: describe, paris, weather, today. Two of four reappear.
	response := "Paris has mild WEATHER most of the year, with occasional rain and wind in autumn months."

	// 88 chars: +0.5 band, overlap 0.5 * 1.5 = 0.75.
	require.InDelta(t, 6.25, Score(response, prompt), 1e-9)
}

func TestScore_ClampedToTen(t *testing.T) {
	prompt := "implement function program script code"
	response := "```\n" + "implement function program script code\n\n- item\n" + strings.Repeat("a", 100)

	got := Score(response, prompt)
	require.LessOrEqual(t, got, Max)
	require.GreaterOrEqual(t, got, 0.0)
}
