package gateway

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"axon/internal/config"
	"axon/pkg/logger"
)

const debounceDelay = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk and hands
// the fresh config to the apply callback. Reload failures keep the previous
// configuration.
type Watcher struct {
	watcher *fsnotify.Watcher
	path    string
	apply   func(cfg *config.Config)
	stopCh  chan struct{}

	mu      sync.Mutex
	pending *time.Timer
}

// NewWatcher creates a config file watcher.
func NewWatcher(path string, apply func(cfg *config.Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher: fw,
		path:    path,
		apply:   apply,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins watching the config file.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Editors replace rather than rewrite, so watch for create too.
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// scheduleReload debounces bursts of file events into a single reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("config reload failed, keeping previous configuration")
		return
	}
	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Str("path", w.path).Msg("reloaded config is invalid, keeping previous configuration")
		return
	}

	logger.Info().Str("path", w.path).Msg("configuration reloaded")
	w.apply(cfg)
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)

	w.mu.Lock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.mu.Unlock()

	w.watcher.Close()
}
