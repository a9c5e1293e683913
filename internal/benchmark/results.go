// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// TestStatus is the outcome of one test.
type TestStatus string

const (
	// TestStatusPassed means the answer reached the target and its check.
	TestStatusPassed TestStatus = "passed"
	// TestStatusBelowTarget means the model answered, but not well enough.
	TestStatusBelowTarget TestStatus = "below_target"
	// TestStatusFailed means the model produced no answer.
	TestStatusFailed TestStatus = "failed"
)

// TestResult is one model's answer to one test.
type TestResult struct {
	Name     string        `json:"name"`
	Type     TestType      `json:"type"`
	Status   TestStatus    `json:"status"`
	Latency  time.Duration `json:"latency"`
	Quality  float64       `json:"quality"`
	Response string        `json:"response,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Result aggregates one model's run. Averages cover answered tests only.
type Result struct {
	Model            string        `json:"model"`
	StartTime        time.Time     `json:"start_time"`
	Duration         time.Duration `json:"duration"`
	Tests            []TestResult  `json:"tests"`
	AvgLatency       time.Duration `json:"avg_latency"`
	AvgQuality       float64       `json:"avg_quality"`
	PassedTests      int           `json:"passed_tests"`
	BelowTargetTests int           `json:"below_target_tests"`
	FailedTests      int           `json:"failed_tests"`
}

func (r *Result) computeAggregates() {
	var latency time.Duration
	var total float64
	answered := 0
	r.PassedTests, r.BelowTargetTests, r.FailedTests = 0, 0, 0

	for _, t := range r.Tests {
		switch t.Status {
		case TestStatusPassed:
			r.PassedTests++
		case TestStatusBelowTarget:
			r.BelowTargetTests++
		default:
			r.FailedTests++
			continue
		}
		latency += t.Latency
		total += t.Quality
		answered++
	}

	r.AvgLatency, r.AvgQuality = 0, 0
	if answered > 0 {
		r.AvgLatency = latency / time.Duration(answered)
		r.AvgQuality = total / float64(answered)
	}
}

// Comparison holds every model's result from one RunComparison.
type Comparison struct {
	Models    []string           `json:"models"`
	Results   map[string]*Result `json:"results"`
	Target    float64            `json:"target"`
	StartTime time.Time          `json:"start_time"`
	Duration  time.Duration      `json:"duration"`
}

// =============================================================================
// RESULT ANALYSIS
// =============================================================================

// BestModel returns the model with the most passed tests, breaking ties by
// average quality and then by average latency. Models that answered nothing
// are never best.
func (c *Comparison) BestModel() (string, *Result) {
	var best string
	var bestRes *Result
	for _, m := range c.Models {
		r := c.Results[m]
		if r == nil || r.FailedTests == len(r.Tests) {
			continue
		}
		if bestRes == nil || better(r, bestRes) {
			best, bestRes = m, r
		}
	}
	return best, bestRes
}

func better(a, b *Result) bool {
	if a.PassedTests != b.PassedTests {
		return a.PassedTests > b.PassedTests
	}
	if a.AvgQuality != b.AvgQuality {
		return a.AvgQuality > b.AvgQuality
	}
	return a.AvgLatency < b.AvgLatency
}

// FastestModel returns the answering model with the lowest average latency.
func (c *Comparison) FastestModel() (string, *Result) {
	var fastest string
	var fastRes *Result
	for _, m := range c.Models {
		r := c.Results[m]
		if r == nil || r.FailedTests == len(r.Tests) {
			continue
		}
		if fastRes == nil || r.AvgLatency < fastRes.AvgLatency {
			fastest, fastRes = m, r
		}
	}
	return fastest, fastRes
}

// =============================================================================
// RESULT STORAGE
// =============================================================================

// Storage saves comparisons as JSON files in one directory.
type Storage struct {
	dir string
}

// NewStorage creates dir if needed.
func NewStorage(dir string) (*Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create benchmark directory: %w", err)
	}
	return &Storage{dir: dir}, nil
}

// Dir returns the storage directory.
func (s *Storage) Dir() string { return s.dir }

// Save writes c and returns the file path. The name sorts by start time.
func (s *Storage) Save(c *Comparison) (string, error) {
	name := fmt.Sprintf("%s_%s.json",
		c.StartTime.UTC().Format("20060102-150405.000"),
		sanitizeFilename(strings.Join(c.Models, "+")))
	path := filepath.Join(s.dir, name)
	if err := util.WriteJSONFile(path, c, 0o644); err != nil {
		return "", fmt.Errorf("failed to save benchmark: %w", err)
	}
	return path, nil
}

// Load reads a saved comparison by file name.
func (s *Storage) Load(name string) (*Comparison, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, err
	}
	var c Comparison
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark %s: %w", name, err)
	}
	return &c, nil
}

// List returns saved file names, newest first.
func (s *Storage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ', '*', '?', '<', '>', '|', '"':
			return '_'
		}
		return r
	}, name)
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatLatency formats a latency for display.
func FormatLatency(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
