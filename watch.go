package shardsift

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// sentinelPollInterval is the stat fallback period for the stop sentinel.
// Notify events normally fire first; the poll covers filesystems without
// reliable change notification, such as network mounts.
const sentinelPollInterval = time.Second

// watchSentinel cancels the run when the stop sentinel appears in dir.
// It blocks until ctx is done.
func watchSentinel(ctx context.Context, fs afero.Fs, dir, name string, cancel context.CancelFunc, logger *zap.Logger) {
	target := filepath.Join(dir, name)

	exists := func() bool {
		ok, err := afero.Exists(fs, target)
		return err == nil && ok
	}
	if exists() {
		logger.Info("stop sentinel present, draining", zap.String("path", target))
		cancel()
		return
	}

	var events chan fsnotify.Event
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
		} else {
			logger.Debug("sentinel watch unavailable, polling only", zap.Error(err))
		}
		defer watcher.Close()
	} else {
		logger.Debug("fsnotify unavailable, polling only", zap.Error(err))
	}

	ticker := time.NewTicker(sentinelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			if filepath.Base(event.Name) == name && event.Op.Has(fsnotify.Create|fsnotify.Rename) {
				logger.Info("stop sentinel created, draining", zap.String("path", target))
				cancel()
				return
			}
		case <-ticker.C:
			if exists() {
				logger.Info("stop sentinel found, draining", zap.String("path", target))
				cancel()
				return
			}
		}
	}
}
