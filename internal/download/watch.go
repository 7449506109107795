package download

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchFallback is the safety-net refresh interval used alongside fsnotify
// and on its own when a watcher cannot be created.
const watchFallback = 2 * time.Second

// Watch calls onChange with the current heartbeats once immediately and
// again whenever the tracking directory changes, until ctx is done.
func (t *Tracker) Watch(ctx context.Context, onChange func([]Progress)) error {
	emit := func() error {
		active, err := t.Active()
		if err != nil {
			return err
		}
		onChange(active)
		return nil
	}
	if err := emit(); err != nil {
		return err
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		defer func() { _ = watcher.Close() }()
		if addErr := watcher.Add(t.ws.TrackingDir()); addErr == nil {
			events, errs = watcher.Events, watcher.Errors
		} else {
			t.logger().Debug("watch tracking dir failed; polling", "error", addErr)
		}
	} else {
		t.logger().Debug("create watcher failed; polling", "error", err)
	}

	ticker := time.NewTicker(watchFallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.logger().Debug("watcher error", "error", err)
			continue
		case <-ticker.C:
		}
		if err := emit(); err != nil {
			return err
		}
	}
}
