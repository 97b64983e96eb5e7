package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses the burst of events editors emit on save
const DefaultDebounce = 500 * time.Millisecond

// ConfigWatcher reloads the configuration when its file changes. Watchers
// registered on the ConfigManager receive the new configuration.
type ConfigWatcher struct {
	configManager *ConfigManager
	watcher       *fsnotify.Watcher
	path          string
	debounce      time.Duration
	logger        *zap.SugaredLogger

	mu      sync.Mutex
	pending *time.Timer
	done    chan struct{}
	stopped sync.Once
}

// NewConfigWatcher watches the directory holding the manager's config file,
// so files replaced by rename are picked up too
func NewConfigWatcher(configManager *ConfigManager, debounce time.Duration, logger *zap.SugaredLogger) (*ConfigWatcher, error) {
	path := configManager.Path()
	if path == "" {
		return nil, fmt.Errorf("no config path set")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", filepath.Dir(abs), err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &ConfigWatcher{
		configManager: configManager,
		watcher:       watcher,
		path:          abs,
		debounce:      debounce,
		logger:        logger,
		done:          make(chan struct{}),
	}, nil
}

// Start runs the watch loop in the background
func (cw *ConfigWatcher) Start() {
	cw.logger.Infow("config watcher started", "path", cw.path)
	go cw.watchLoop()
}

// Stop ends the watch loop and cancels a pending reload
func (cw *ConfigWatcher) Stop() {
	cw.stopped.Do(func() {
		close(cw.done)
		if err := cw.watcher.Close(); err != nil {
			cw.logger.Warnw("failed to close config watcher", "error", err)
		}
		cw.mu.Lock()
		if cw.pending != nil {
			cw.pending.Stop()
		}
		cw.mu.Unlock()
	})
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("config watcher error", "error", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) handleFileEvent(event fsnotify.Event) {
	name, err := filepath.Abs(event.Name)
	if err != nil || name != cw.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.pending != nil {
		cw.pending.Stop()
	}
	cw.pending = time.AfterFunc(cw.debounce, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.done:
		return
	default:
	}

	if err := cw.configManager.Reload(); err != nil {
		cw.logger.Errorw("config reload failed, keeping previous configuration", "path", cw.path, "error", err)
		return
	}
	cw.logger.Infow("configuration reloaded", "path", cw.path)
}
