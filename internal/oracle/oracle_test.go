// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/rigrun-router/internal/util"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoad_MissingFileGivesDefault(t *testing.T) {
	tbl, err := Load(filepath.Join(t.TempDir(), "routing_table.json"))
	require.NoError(t, err)
	require.Len(t, tbl.Models, 1)

	m := tbl.Models[0]
	require.Equal(t, "provider/flash-mini", m.ID)
	require.Equal(t, 0.25, m.PriceIn)
	require.Equal(t, PrivacyP1, m.Privacy)
	require.Equal(t, map[string]int{"extract": 8, "summarize": 7, "code": 6}, m.Viability)
	require.NotZero(t, tbl.UpdatedAt)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_table.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnsureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracle", "routing_table.json")

	written, err := EnsureFile(path, false)
	require.NoError(t, err)
	require.FileExists(t, path)

	// Existing file is left alone without force.
	custom := Table{UpdatedAt: 42, Models: []Model{{ID: "x/free", Privacy: PrivacyP0}}}
	require.NoError(t, util.WriteJSONFile(path, custom, 0o644))

	got, err := EnsureFile(path, false)
	require.NoError(t, err)
	if diff := cmp.Diff(custom, got); diff != "" {
		t.Fatalf("EnsureFile rewrote an existing table (-want +got):\n%s", diff)
	}

	// Force rewrites from what is on disk.
	forced, err := EnsureFile(path, true)
	require.NoError(t, err)
	require.Equal(t, custom.Models, forced.Models)
	require.Equal(t, "provider/flash-mini", written.Models[0].ID)
}

func TestTable_FreeAndPrivate(t *testing.T) {
	tbl := Table{Models: []Model{
		{ID: "paid/p0", PriceIn: 1, Privacy: PrivacyP0},
		{ID: "free/p2", PriceIn: 0, Privacy: PrivacyP2},
		{ID: "free/none", PriceIn: 0},
		{ID: "free/p1", PriceIn: 0, Privacy: PrivacyP1},
		{ID: "free/p0", PriceIn: 0, Privacy: PrivacyP0},
	}}

	free := tbl.Free()
	require.Len(t, free, 4)

	m, ok := tbl.FirstFreePrivate()
	require.True(t, ok)
	require.Equal(t, "free/p1", m.ID)

	_, ok = Table{Models: tbl.Models[:3]}.FirstFreePrivate()
	require.False(t, ok, "missing privacy tier must not qualify")
}

func TestTable_Clone(t *testing.T) {
	tbl := Default(time.Unix(1, 0))
	c := tbl.Clone()
	c.Models[0].Viability["code"] = 1
	require.Equal(t, 6, tbl.Models[0].Viability["code"])
}

func TestSource_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing_table.json")
	require.NoError(t, util.WriteJSONFile(path, Default(time.Unix(1, 0)), 0o644))

	src, err := NewSource(path, nil)
	require.NoError(t, err)
	require.Equal(t, "provider/flash-mini", src.Snapshot().Models[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx) }()

	next := Table{UpdatedAt: 2, Models: []Model{{ID: "free/new", Privacy: PrivacyP0}}}
	require.Eventually(t, func() bool {
		// Rewrite until the watcher has registered and picked it up.
		if err := util.WriteJSONFile(path, next, 0o644); err != nil {
			return false
		}
		return src.Snapshot().Models[0].ID == "free/new"
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestSource_BadReloadKeepsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing_table.json")
	src, err := NewSource(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	require.Error(t, src.Reload())
	require.Equal(t, "provider/flash-mini", src.Snapshot().Models[0].ID)
}
