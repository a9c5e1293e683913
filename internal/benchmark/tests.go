// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import "strings"

// =============================================================================
// TEST DEFINITIONS
// =============================================================================

// TestType groups tests by what they exercise.
type TestType string

const (
	TestTypeLatency     TestType = "latency"
	TestTypeCode        TestType = "code"
	TestTypeExplanation TestType = "explanation"
	TestTypeStructure   TestType = "structure"
)

// Test is one benchmark prompt. Check, when set, decides whether the answer
// is acceptable independent of its quality score.
type Test struct {
	Name   string
	Type   TestType
	Prompt string
	Check  func(response string) bool
}

// StandardTests returns the default suite.
func StandardTests() []Test {
	return []Test{
		{
			Name:   "Latency",
			Type:   TestTypeLatency,
			Prompt: "Say hello in one short sentence.",
			Check: func(r string) bool {
				return strings.Contains(strings.ToLower(r), "hello")
			},
		},
		{
			Name:   "Code",
			Type:   TestTypeCode,
			Prompt: "Write a python function that reverses a string. Show the code.",
			Check: func(r string) bool {
				return strings.Contains(r, "def ")
			},
		},
		{
			Name:   "Explanation",
			Type:   TestTypeExplanation,
			Prompt: "Explain what a hash map is and when lookups become slow.",
		},
		{
			Name:   "Structure",
			Type:   TestTypeStructure,
			Prompt: "List three advantages of running language models locally.",
			Check: func(r string) bool {
				return strings.Count(r, "\n") >= 2
			},
		},
	}
}
