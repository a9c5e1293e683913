// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longAnswer = "hello there, this answer is long enough for the scorer to rate it well."

// fakeGen answers per model and advances the shared clock by the model's
// delay on every call.
type fakeGen struct {
	clock   *fakeClock
	answers map[string]string
	delays  map[string]time.Duration
	prompts []string
}

func (g *fakeGen) Generate(ctx context.Context, model, prompt string, temperature float64) (string, error) {
	g.prompts = append(g.prompts, prompt)
	g.clock.t = g.clock.t.Add(g.delays[model])
	text, ok := g.answers[model]
	if !ok {
		return "", errors.New("model not found")
	}
	return text, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func newTestRunner() (*Runner, *fakeGen) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	gen := &fakeGen{
		clock: clock,
		answers: map[string]string{
			"good": longAnswer,
			"weak": "ok",
		},
		delays: map[string]time.Duration{
			"good": 300 * time.Millisecond,
			"weak": 50 * time.Millisecond,
		},
	}
	tests := []Test{
		{
			Name:   "greeting",
			Type:   TestTypeLatency,
			Prompt: "say hello",
			Check:  func(r string) bool { return strings.Contains(r, "hello") },
		},
		{Name: "free", Type: TestTypeExplanation, Prompt: "explain something"},
	}
	r := NewRunner(gen, WithTests(tests), WithTarget(4), WithClock(clock.now))
	return r, gen
}

// =============================================================================
// RUNNER TESTS
// =============================================================================

func TestRun_ScoresEachTest(t *testing.T) {
	r, gen := newTestRunner()

	res, err := r.Run(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, []string{"say hello", "explain something"}, gen.prompts)

	require.Len(t, res.Tests, 2)
	for _, tr := range res.Tests {
		assert.Equal(t, TestStatusPassed, tr.Status, tr.Name)
		assert.GreaterOrEqual(t, tr.Quality, 4.0)
		assert.Equal(t, 300*time.Millisecond, tr.Latency)
		assert.Equal(t, longAnswer, tr.Response)
	}
	assert.Equal(t, 2, res.PassedTests)
	assert.Equal(t, 300*time.Millisecond, res.AvgLatency)
	assert.Equal(t, 600*time.Millisecond, res.Duration)
}

func TestRun_BelowTargetAndFailures(t *testing.T) {
	r, _ := newTestRunner()

	weak, err := r.Run(context.Background(), "weak")
	require.NoError(t, err)
	assert.Equal(t, 0, weak.PassedTests)
	assert.Equal(t, 2, weak.BelowTargetTests)
	assert.Zero(t, weak.AvgQuality)

	down, err := r.Run(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, down.FailedTests)
	assert.Equal(t, "model not found", down.Tests[0].Error)
	assert.Zero(t, down.AvgLatency)
}

func TestRun_CheckFailureIsBelowTarget(t *testing.T) {
	r, gen := newTestRunner()
	gen.answers["good"] = strings.ReplaceAll(longAnswer, "hello", "greetings")

	res, err := r.Run(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, TestStatusBelowTarget, res.Tests[0].Status)
	assert.Equal(t, TestStatusPassed, res.Tests[1].Status)
}

func TestRun_Errors(t *testing.T) {
	r, _ := newTestRunner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, "good")
	require.ErrorIs(t, err, context.Canceled)

	empty := NewRunner(&fakeGen{}, WithTests(nil))
	_, err = empty.Run(context.Background(), "good")
	require.ErrorIs(t, err, ErrNoTests)

	blank := NewRunner(&fakeGen{clock: &fakeClock{}}, WithTests([]Test{{Name: "blank"}}))
	res, err := blank.Run(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "empty prompt", res.Tests[0].Error)
}

func TestStandardTests(t *testing.T) {
	tests := StandardTests()
	require.NotEmpty(t, tests)
	seen := map[string]bool{}
	for _, tt := range tests {
		assert.NotEmpty(t, tt.Prompt, tt.Name)
		assert.False(t, seen[tt.Name], "duplicate %s", tt.Name)
		seen[tt.Name] = true
	}
}

// =============================================================================
// COMPARISON TESTS
// =============================================================================

func TestRunComparison_BestAndFastest(t *testing.T) {
	r, _ := newTestRunner()

	c, err := r.RunComparison(context.Background(), []string{"weak", "missing", "good"})
	require.NoError(t, err)
	assert.Len(t, c.Results, 3)
	assert.Equal(t, 4.0, c.Target)

	best, res := c.BestModel()
	assert.Equal(t, "good", best)
	assert.Equal(t, 2, res.PassedTests)

	fastest, _ := c.FastestModel()
	assert.Equal(t, "weak", fastest)
}

func TestRunComparison_NoModelAnswered(t *testing.T) {
	r, _ := newTestRunner()

	c, err := r.RunComparison(context.Background(), []string{"missing"})
	require.Error(t, err)
	require.NotNil(t, c)

	best, res := c.BestModel()
	assert.Empty(t, best)
	assert.Nil(t, res)
}

func TestBetter_TieBreaks(t *testing.T) {
	a := &Result{PassedTests: 1, AvgQuality: 7, AvgLatency: time.Second}
	b := &Result{PassedTests: 1, AvgQuality: 7, AvgLatency: 2 * time.Second}
	assert.True(t, better(a, b))
	assert.False(t, better(b, a))

	b.AvgQuality = 8
	assert.True(t, better(b, a))
}

// =============================================================================
// STORAGE TESTS
// =============================================================================

func TestStorage_SaveListLoad(t *testing.T) {
	r, _ := newTestRunner()
	c, err := r.RunComparison(context.Background(), []string{"good", "weak"})
	require.NoError(t, err)

	s, err := NewStorage(filepath.Join(t.TempDir(), "bench"))
	require.NoError(t, err)

	path, err := s.Save(c)
	require.NoError(t, err)
	assert.Equal(t, "20250301-120000.000_good+weak.json", filepath.Base(path))

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(path)}, names)

	got, err := s.Load(names[0])
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(c, got))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "llama3.2_3b_qwen_7b", sanitizeFilename("llama3.2:3b qwen/7b"))
}

func TestFormatLatency(t *testing.T) {
	assert.Equal(t, "N/A", FormatLatency(0))
	assert.Equal(t, "250ms", FormatLatency(250*time.Millisecond))
	assert.Equal(t, "1.50s", FormatLatency(1500*time.Millisecond))
}
