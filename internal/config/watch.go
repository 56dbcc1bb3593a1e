package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/DTMBX/evident/internal/logger"
)

// tierLimitsFile is the subset of an override file Watcher cares about;
// every other key is left untouched on reload.
type tierLimitsFile struct {
	TierLimits map[string]TierLimit `yaml:"tier_limits"`
}

// Watcher hot-reloads a Config's tier_limits from its override file
// whenever the file changes on disk, grounded on the debounced
// fsnotify.Watcher pattern used elsewhere in the example pack for
// policy-file reloads. No other Config field is reloadable: worker pool
// size, queue capacity, and the storage/cache/events endpoints are fixed
// for the process lifetime by design (spec.md §6.4).
type Watcher struct {
	cfg  *Config
	path string

	fsw      *fsnotify.Watcher
	debounce *time.Timer
	mu       sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher builds a Watcher over cfg's override file. path is the same
// EVIDENT_CONFIG_FILE value Load consulted at startup; an empty path
// means there is nothing to watch and Start is a no-op.
func NewWatcher(cfg *Config, path string) (*Watcher, error) {
	if path == "" {
		return &Watcher{cfg: cfg}, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: failed to create file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: failed to watch %s: %w", path, err)
	}

	return &Watcher{
		cfg:    cfg,
		path:   path,
		fsw:    fsw,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start runs the watch loop in a new goroutine and returns immediately.
// A no-op Watcher (empty path) returns immediately without spawning
// anything.
func (w *Watcher) Start() {
	if w.fsw == nil {
		return
	}
	go w.run()
}

// Stop halts the watch loop and releases the underlying fsnotify handle.
// Safe to call on a no-op Watcher.
func (w *Watcher) Stop() {
	if w.fsw == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.doneCh)
	log := logger.GetLogger()

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(log)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Str("path", w.path).Msg("config file watcher error")
		}
	}
}

// debounceReload collapses a burst of writes (editors often write a file
// in multiple syscalls) into a single reload 100ms after the last event.
func (w *Watcher) debounceReload(log *zerolog.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(100*time.Millisecond, func() {
		if err := w.reload(); err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("tier limits reload failed, keeping previous values")
			return
		}
		log.Info().Str("path", w.path).Msg("tier limits reloaded")
	})
}

func (w *Watcher) reload() error {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.path, err)
	}

	var parsed tierLimitsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("failed to parse %s: %w", w.path, err)
	}
	if len(parsed.TierLimits) == 0 {
		return fmt.Errorf("%s has no tier_limits entries, refusing empty reload", w.path)
	}

	w.cfg.SetTierLimits(parsed.TierLimits)
	return nil
}
