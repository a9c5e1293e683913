// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package advisor

import (
	"sort"
	"strings"
)

// ============================================================================
// PRICING TABLE
// ============================================================================

const (
	// FallbackInputPerMillion is charged for models missing from the table.
	FallbackInputPerMillion = 3.0
	// FallbackOutputPerMillion is charged for models missing from the table.
	FallbackOutputPerMillion = 15.0
	// FallbackQuality is assumed for cloud models missing from the table.
	FallbackQuality = 9.5

	// MinQualityGain is the smallest gain worth listing as an upgrade.
	MinQualityGain = 0.5

	inputTokensPerWord = 1.3
	outputInputRatio   = 2.0
)

// Model is one premium cloud model with dollar pricing per million tokens.
type Model struct {
	ID               string   `json:"model" toml:"id"`
	InputPerMillion  float64  `json:"input_per_million" toml:"input_per_million"`
	OutputPerMillion float64  `json:"output_per_million" toml:"output_per_million"`
	Quality          float64  `json:"quality" toml:"quality"`
	Specialties      []string `json:"specialties,omitempty" toml:"specialties"`
}

// DefaultModels returns the built-in premium table in ranking order.
func DefaultModels() []Model {
	return []Model{
		{
			ID:               "anthropic/claude-3.5-sonnet",
			InputPerMillion:  3.0,
			OutputPerMillion: 15.0,
			Quality:          9.5,
			Specialties:      []string{"code_review", "analysis", "writing"},
		},
		{
			ID:               "openai/gpt-4",
			InputPerMillion:  30.0,
			OutputPerMillion: 60.0,
			Quality:          9.9,
			Specialties:      []string{"complex_reasoning", "architecture", "debugging"},
		},
		{
			ID:               "anthropic/claude-3-opus",
			InputPerMillion:  15.0,
			OutputPerMillion: 75.0,
			Quality:          9.8,
			Specialties:      []string{"creative", "analysis", "research"},
		},
	}
}

// UpgradeOption is one ranked cloud alternative for a prompt.
type UpgradeOption struct {
	Model         string   `json:"model"`
	Quality       float64  `json:"quality"`
	QualityGain   float64  `json:"quality_gain"`
	EstimatedCost float64  `json:"estimated_cost"`
	CostPerPoint  float64  `json:"cost_per_point"`
	Specialties   []string `json:"specialties"`
}

// Advisor ranks premium models against a local quality score. It holds a
// read-only copy of the pricing table and is safe for concurrent use.
type Advisor struct {
	models []Model
	byID   map[string]Model
}

// New builds an advisor over models. A nil or empty table uses DefaultModels.
func New(models []Model) *Advisor {
	if len(models) == 0 {
		models = DefaultModels()
	}
	a := &Advisor{
		models: make([]Model, len(models)),
		byID:   make(map[string]Model, len(models)),
	}
	copy(a.models, models)
	for _, m := range a.models {
		a.byID[m.ID] = m
	}
	return a
}

// Models returns a copy of the pricing table.
func (a *Advisor) Models() []Model {
	out := make([]Model, len(a.models))
	copy(out, a.models)
	return out
}

// Lookup returns the table entry for id.
func (a *Advisor) Lookup(id string) (Model, bool) {
	m, ok := a.byID[id]
	return m, ok
}

// QualityOf returns the table quality for id, or FallbackQuality.
func (a *Advisor) QualityOf(id string) float64 {
	if m, ok := a.byID[id]; ok {
		return m.Quality
	}
	return FallbackQuality
}

// ============================================================================
// COST ESTIMATION
// ============================================================================

// EstimateTokens returns the estimated input and output token counts for a
// prompt. Both are truncated toward zero.
func EstimateTokens(prompt string) (input, output int) {
	in := float64(len(strings.Fields(prompt))) * inputTokensPerWord
	return int(in), int(in * outputInputRatio)
}

// Cost prices a token count at the table rate for model. Unknown models use
// the fallback rates.
func (a *Advisor) Cost(model string, inputTokens, outputTokens int) float64 {
	in, out := FallbackInputPerMillion, FallbackOutputPerMillion
	if m, ok := a.byID[model]; ok {
		in, out = m.InputPerMillion, m.OutputPerMillion
	}
	return float64(inputTokens)/1_000_000*in + float64(outputTokens)/1_000_000*out
}

// EstimateCost prices prompt on model without running it.
func (a *Advisor) EstimateCost(prompt, model string) float64 {
	in, out := EstimateTokens(prompt)
	return a.Cost(model, in, out)
}

// ============================================================================
// RANKING
// ============================================================================

// Rank lists the premium models whose quality beats localQuality by more
// than MinQualityGain, cheapest per quality point first. Ties keep table
// order. An empty result means no upgrade is worth it.
func (a *Advisor) Rank(prompt string, localQuality float64) []UpgradeOption {
	in, out := EstimateTokens(prompt)

	options := make([]UpgradeOption, 0, len(a.models))
	for _, m := range a.models {
		gain := m.Quality - localQuality
		if gain <= MinQualityGain {
			continue
		}
		cost := a.Cost(m.ID, in, out)
		specialties := make([]string, len(m.Specialties))
		copy(specialties, m.Specialties)
		options = append(options, UpgradeOption{
			Model:         m.ID,
			Quality:       m.Quality,
			QualityGain:   gain,
			EstimatedCost: cost,
			CostPerPoint:  cost / gain,
			Specialties:   specialties,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].CostPerPoint < options[j].CostPerPoint
	})
	return options
}
