// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher observes the config file and invokes the reload callback after
// changes settle. Editors replace files with rename+create, so the parent
// directory is watched rather than the file itself.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   zerolog.Logger
	onChange func()
}

func NewWatcher(path string, logger zerolog.Logger, onChange func()) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: 500 * time.Millisecond,
		logger:   logger,
		onChange: onChange,
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Str("event", "config.watch_error").Msg("config watcher error")
		case <-fire:
			fire = nil
			w.logger.Info().Str("event", "config.changed").Str("path", w.path).Msg("config file changed")
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
