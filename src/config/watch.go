package config

import (
	"context"

	"bond-inventory/src/logger"

	"github.com/fsnotify/fsnotify"
)

// -----------------------------------------------------------------------------

// Watch monitors configPath for changes and calls onChange with the newly
// loaded Config each time the file is written. It blocks until ctx is
// cancelled.
//
// A reload that fails to parse or validate is logged and skipped; the
// previous config remains active.
func Watch(ctx context.Context, configPath string, log *logger.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		return err
	}

	log.Info("Watching config file %s for changes", configPath)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create as well as Write.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := NewConfig(configPath)
			if err != nil {
				log.Error("Config reload failed, keeping previous config: %v", err)
				continue
			}

			log.Info("Config reloaded from %s", configPath)
			onChange(cfg)

			// Re-add the path in case an atomic save replaced the inode.
			_ = watcher.Add(configPath)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Config watcher error: %v", err)
		}
	}
}
