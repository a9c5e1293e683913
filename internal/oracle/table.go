// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jeranaias/rigrun-router/internal/util"
)

// Privacy tiers. P0 and P1 may receive job context; anything else may not.
const (
	PrivacyP0 = "P0"
	PrivacyP1 = "P1"
	PrivacyP2 = "P2"
)

// Model is one routing table entry. Prices are per million tokens.
type Model struct {
	ID        string         `json:"id"`
	PriceIn   float64        `json:"price_in"`
	PriceOut  float64        `json:"price_out"`
	Privacy   string         `json:"privacy"`
	Viability map[string]int `json:"viability,omitempty"`
}

// IsFree reports whether input tokens cost nothing.
func (m Model) IsFree() bool {
	return m.PriceIn == 0
}

// IsPrivate reports whether the privacy tier allows sending job context.
// A missing tier does not qualify.
func (m Model) IsPrivate() bool {
	return m.Privacy == PrivacyP0 || m.Privacy == PrivacyP1
}

// Table is an ordered routing table.
type Table struct {
	UpdatedAt int64   `json:"updated_at"`
	Models    []Model `json:"models"`
}

// Default returns the built-in single-model table.
func Default(now time.Time) Table {
	return Table{
		UpdatedAt: now.Unix(),
		Models: []Model{{
			ID:        "provider/flash-mini",
			PriceIn:   0.25,
			PriceOut:  0.25,
			Privacy:   PrivacyP1,
			Viability: map[string]int{"extract": 8, "summarize": 7, "code": 6},
		}},
	}
}

// Snapshot returns t itself so a Table satisfies the same read interface as
// a watched Source.
func (t Table) Snapshot() Table {
	return t
}

// Free returns the free models in table order.
func (t Table) Free() []Model {
	var out []Model
	for _, m := range t.Models {
		if m.IsFree() {
			out = append(out, m)
		}
	}
	return out
}

// FirstFreePrivate returns the first model that is both free and private.
func (t Table) FirstFreePrivate() (Model, bool) {
	for _, m := range t.Models {
		if m.IsFree() && m.IsPrivate() {
			return m, true
		}
	}
	return Model{}, false
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := Table{UpdatedAt: t.UpdatedAt, Models: make([]Model, len(t.Models))}
	for i, m := range t.Models {
		if m.Viability != nil {
			v := make(map[string]int, len(m.Viability))
			for k, n := range m.Viability {
				v[k] = n
			}
			m.Viability = v
		}
		out.Models[i] = m
	}
	return out
}

// =============================================================================
// FILE I/O
// =============================================================================

// Load reads the table at path. A missing file yields Default.
func Load(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(time.Now()), nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("oracle: read %s: %w", path, err)
	}

	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("oracle: parse %s: %w", path, err)
	}
	return t, nil
}

// EnsureFile writes the current table to path when the file is missing or
// force is set, and returns the table on disk.
func EnsureFile(path string, force bool) (Table, error) {
	_, statErr := os.Stat(path)
	if !force && statErr == nil {
		return Load(path)
	}

	t, err := Load(path)
	if err != nil {
		return Table{}, err
	}
	if err := util.WriteJSONFile(path, t, 0o644); err != nil {
		return Table{}, fmt.Errorf("oracle: write %s: %w", path, err)
	}
	return t, nil
}
