// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attempt

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
		reason  string
	}{
		{Accepted{Output: "x", Tier: TierLocal}, "local success", "ok_local"},
		{RetryAccepted{Output: "x"}, "local retry success", "retry_ok"},
		{EscalationSuggested{Target: TargetNeedPaid}, "suggest escalation", "escalation_suggested"},
		{LocalLimitReached{Reasons: []string{"schema_invalid"}}, "local limit reached", "local_limit:schema_invalid"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Summary(tt.outcome))
		require.Equal(t, tt.reason, tt.outcome.Reason())
	}
}

func TestSummary_PanicsOnNil(t *testing.T) {
	require.Panics(t, func() { Summary(nil) })
}

func TestEscalationSuggested_FreeModel(t *testing.T) {
	_, ok := EscalationSuggested{Target: TargetNeedPaid}.FreeModel()
	require.False(t, ok)
}

func TestPromptBuilder_Template(t *testing.T) {
	b := NewPromptBuilder(0, 0)

	got := b.Build("summarize", "hello")
	want := "You are a careful assistant. Goal: summarize\n" +
		"If a JSON schema is provided, produce strictly valid JSON matching it.\n" +
		"Context (may be empty):\n---\nhello\n---\n" +
		"Return ONLY the output (no extra prose)."
	require.Equal(t, want, got)
}

func TestPromptBuilder_ClipsContext(t *testing.T) {
	b := NewPromptBuilder(0, 0)
	got := b.Build("g", strings.Repeat("é", 5000))
	require.Equal(t, MaxContextChars, strings.Count(got, "é"))
}

func TestPromptBuilder_CachesUntilTTL(t *testing.T) {
	b := NewPromptBuilder(2, time.Minute)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	first := b.Build("g", "c")
	require.Equal(t, 1, b.Len())
	require.Equal(t, first, b.Build("g", "c"))
	require.Equal(t, 1, b.Len())

	now = now.Add(2 * time.Minute)
	require.Equal(t, first, b.Build("g", "c"), "expired entries are rebuilt identically")

	b.Build("g2", "c")
	b.Build("g3", "c")
	require.Equal(t, 2, b.Len())
}

func TestRetryPrompt(t *testing.T) {
	require.Equal(t, "short", RetryPrompt("short"))
	require.Len(t, []rune(RetryPrompt(strings.Repeat("ж", 4000))), RetryPromptChars)
}
