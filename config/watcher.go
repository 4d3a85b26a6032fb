package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/kaipokrandt/iotsecuritydash/errors"
)

// Watcher hot-reloads the config file and notifies registered callbacks.
// A reload that fails to load or validate keeps the previous config.
type Watcher struct {
	path     string
	mu       sync.RWMutex
	current  Config
	onChange []func(Config)
}

// NewWatcher creates a watcher and performs the initial load.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, current: cfg}, nil
}

// Config returns the latest valid configuration.
func (w *Watcher) Config() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (w *Watcher) OnChange(fn func(Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Watch starts a background goroutine that reloads on file changes. Call
// the returned stop function to clean up.
func (w *Watcher) Watch() (stop func(), err error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapFatal(err, "config", "Watch", "create fs watcher")
	}
	if err := fsw.Add(w.path); err != nil {
		_ = fsw.Close()
		return nil, errors.WrapFatal(err, "config", "Watch", "watch config file")
	}

	done := make(chan struct{})
	go func() {
		defer fsw.Close()
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					_, _ = w.Reload()
				}
			case <-fsw.Errors:
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
func (w *Watcher) Reload() (Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		return w.Config(), err
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}
