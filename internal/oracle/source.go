// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package oracle

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// WATCHED SOURCE
// =============================================================================

// Source serves the routing table loaded from a file and replaces it whole
// when the file changes.
type Source struct {
	path    string
	current atomic.Pointer[Table]
	logger  *zap.Logger
}

// NewSource loads path and returns a source serving it.
func NewSource(path string, logger *zap.Logger) (*Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Source{path: path, logger: logger.Named("oracle")}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Source) Path() string {
	return s.path
}

// Snapshot returns the current table. The result must be treated as
// read-only.
func (s *Source) Snapshot() Table {
	return *s.current.Load()
}

// Reload re-reads the backing file. On error the previous table is kept.
func (s *Source) Reload() error {
	t, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(&t)
	return nil
}

// Watch reloads the table whenever the backing file is written, created or
// renamed into place. The parent directory is watched so atomic
// replace-by-rename is seen. Watch blocks until ctx is done.
func (s *Source) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("oracle: create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("oracle: watch %s: %w", dir, err)
	}
	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("routing table reload failed, keeping previous table",
					zap.String("path", s.path), zap.Error(err))
				continue
			}
			s.logger.Info("routing table reloaded",
				zap.String("path", s.path),
				zap.Int("models", len(s.Snapshot().Models)))

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("routing table watcher error", zap.Error(err))
		}
	}
}
