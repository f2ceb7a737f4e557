package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"

	"github.com/obsidianstack/piggyback/agent/internal/logging"
)

// Watch monitors path for changes and calls onChange with the newly loaded
// Config each time the file is written. It runs until ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML or a duplicate hostname), the error
// is logged and the previous config remains active: onChange is not called.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	logger = logging.Default(logger).With("component", "config")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger.Info("config: watching for changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so Create counts as a write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}

			logger.Info("config: reloaded", "path", path, "hosts", len(cfg.Agent.Hosts))
			onChange(cfg)

			// Re-add the file in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("config: watcher error", "err", err)
		}
	}
}
