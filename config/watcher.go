package config

import (
	"context"
	"path/filepath"
	"time"

	"edittrack/logger"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the event bursts editors produce when saving.
const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file when it changes and hands the result to a
// callback. This is how a settings toggle (telemetry on/off) takes effect in
// a running daemon.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onLoad  func(*Config)
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for the config file at path. onLoad is called
// from the watch goroutine with each successfully reloaded config.
func NewWatcher(path string, onLoad func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors typically write a temp
	// file and rename it over the original, which drops a file watch.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		path:    path,
		watcher: fw,
		onLoad:  onLoad,
	}, nil
}

// Start begins watching. Stop with Close or by cancelling ctx.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.loop(ctx)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)

	var debounce *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warn("config reload failed: %v", err)
				continue
			}
			logger.Info("config reloaded (telemetry enabled: %v)", cfg.Telemetry.Enabled)
			w.onLoad(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error: %v", err)
		}
	}
}

// Close stops watching. Idempotent.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	err := w.watcher.Close()
	if w.done != nil {
		<-w.done
		w.done = nil
	}
	return err
}
