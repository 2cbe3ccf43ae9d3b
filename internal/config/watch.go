// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/frameloop"
)

// settle is how long Watch waits after the last write before reloading.
// Editors often write a file in several steps.
const settle = 50 * time.Millisecond

// Watch reloads path whenever it changes and calls onChange with every
// configuration that loads and validates. Invalid files are logged and
// skipped. Watch blocks until ctx is done and then returns nil.
//
// The directory is watched rather than the file, so editors that replace
// the file by renaming keep working.
func Watch(ctx context.Context, path string, onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("config: watch: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}
	log := frameloop.Logger().With("path", abs)
	log.Debug("config: watching")

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			cfg, err := Load(abs)
			if err != nil {
				log.Warn("config: reload failed", "err", err)
				continue
			}
			log.Info("config: reloaded")
			onChange(cfg)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config: watcher error", "err", err)
		}
	}
}
