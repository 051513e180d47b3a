package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the sandbox and model sections of a config file on change
// and leaves tool/lifecycle state untouched, per the hot-reload scope in
// SPEC_FULL §6.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config

	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher loads path once and returns a Watcher primed with the result.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, logger: logger, current: cfg}, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the config file for changes. Stop cancels it.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.path); err != nil {
		_ = fsw.Close()
		return err
	}
	w.fs = fsw

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.watchLoop(watchCtx)
	return nil
}

// Stop halts the watch goroutine and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.fs != nil {
		_ = w.fs.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	const debounce = 250 * time.Millisecond

	reload := func() {
		cfg, err := Load(w.path)
		if err != nil {
			w.logger.Warn("config reload failed, keeping previous config", "error", err)
			return
		}
		w.mu.Lock()
		prev := w.current
		// Only the sandbox and model sections are hot-reloaded; tool and
		// lifecycle state are process-lifetime and never swapped mid-run.
		cfg.Agent = prev.Agent
		cfg.Tournament = prev.Tournament
		cfg.Context = prev.Context
		cfg.Telemetry = prev.Telemetry
		w.current = cfg
		w.mu.Unlock()
		w.logger.Info("config reloaded", "path", w.path)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, reload)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}
