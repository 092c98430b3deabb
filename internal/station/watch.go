package station

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reapplies the overrides file whenever it changes on disk,
// blocking until ctx is cancelled. Editors typically replace files by
// rename, so the watch is on the parent directory and events are matched
// against the file name. A registry without an overrides path returns
// immediately.
func (r *Registry) Watch(ctx context.Context) error {
	if r.overridesPath == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(r.overridesPath)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(r.overridesPath)
	r.logger.WithField("path", target).Info("watching station overrides file")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := r.ApplyOverrides(); err != nil {
				// Keep the previous state; a half-written file will fire
				// another event once the editor finishes.
				r.logger.WithError(err).Warn("failed to reload station overrides")
				continue
			}
			r.logger.Info("station overrides reloaded")

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WithError(watchErr).Warn("overrides watcher error")

		case <-ctx.Done():
			return nil
		}
	}
}
