package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"gitscribe/pkg/logging"
)

// DefaultDebounceInterval is the time to wait after the last file event
// before triggering a reload. Editors typically produce several writes per
// save.
const DefaultDebounceInterval = 500 * time.Millisecond

// Watcher monitors the configuration file and invokes a callback with the
// freshly loaded configuration when it changes. Components that support hot
// reload (git defaults, cleanup thresholds, rate limits) subscribe through
// the callback; everything else requires a restart.
type Watcher struct {
	mu sync.Mutex

	configPath string
	onChange   func(Config)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the config.yaml inside configPath.
func NewWatcher(configPath string, onChange func(Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		configPath: configPath,
		onChange:   onChange,
		fsWatcher:  fw,
		stopCh:     make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the directory rather than the file keeps
// events flowing across rename-based atomic saves.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}
	if err := w.fsWatcher.Add(w.configPath); err != nil {
		return err
	}
	w.running = true
	go w.loop()
	logging.Info("Config", "Watching %s for configuration changes", w.configPath)
	return nil
}

// Stop stops the watcher and releases the underlying fsnotify resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.fsWatcher.Close()
	w.running = false
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFileName {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Config", "Configuration watcher error: %v", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(DefaultDebounceInterval, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		logging.Error("Config", err, "Failed to reload configuration, keeping previous values")
		return
	}
	logging.Info("Config", "Configuration reloaded")
	w.onChange(cfg)
}
