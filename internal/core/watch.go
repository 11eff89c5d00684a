package core

import (
	"context"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
)

// WatchOptions configures hot-swap detection
type WatchOptions struct {
	// Interval between unconditional rescans; zero disables polling
	Interval time.Duration
	// Paths are directories whose entries appear and vanish as devices are
	// mounted, such as the GVFS mount directory. Missing paths are ignored.
	Paths []string
	// Debounce collapses bursts of filesystem events into one rescan
	Debounce time.Duration
}

// Watch rescans the registry whenever a watched mount directory changes and
// every Interval, until ctx ends.
func (s *Service) Watch(ctx context.Context, opts WatchOptions) error {
	return watchRegistry(ctx, s.registry, opts, s.logger)
}

func watchRegistry(ctx context.Context, registry *Registry, opts WatchOptions, logger log.Interface) error {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	for _, p := range opts.Paths {
		if _, err := os.Stat(p); err != nil {
			logger.WithField("path", p).Debug("[Watcher] watch: path not present, skipping")
			continue
		}
		if err := watcher.Add(p); err != nil {
			logger.WithError(err).WithField("path", p).Warn("[Watcher] watch: failed to watch path")
			continue
		}
		logger.WithField("path", p).Info("[Watcher] watch: watching for device mounts")
	}

	var tick <-chan time.Time
	if opts.Interval > 0 {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	debounce := time.NewTimer(opts.Debounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				logger.WithFields(log.Fields{"name": event.Name, "op": event.Op.String()}).Debug("[Watcher] watch: mount change")
				if !pending {
					debounce.Reset(opts.Debounce)
					pending = true
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("[Watcher] watch: watcher error")
		case <-debounce.C:
			pending = false
			registry.Refresh(ctx)
		case <-tick:
			registry.Refresh(ctx)
		}
	}
}
