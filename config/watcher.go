package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/funcn-ai/funcn-sub000/logging"
)

// WatcherOptions configure a Watcher.
type WatcherOptions struct {
	// Debounce coalesces bursts of file events; editors often write a file
	// in several steps.
	Debounce time.Duration
	Logger   logging.Logger
	// OnError receives reload failures. The previous configuration stays
	// active after a failure.
	OnError func(err error)
}

// Watcher keeps a configuration file loaded and reloads it when it changes.
type Watcher struct {
	path   string
	opts   WatcherOptions
	logger logging.Logger
	fs     *fsnotify.Watcher

	mu        sync.RWMutex
	current   *File
	callbacks []func(old, new *File)

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	done      chan struct{}
	closeOnce sync.Once
}

// NewWatcher loads path and starts watching it.
func NewWatcher(path string, optFns ...func(o *WatcherOptions)) (*Watcher, error) {
	opts := WatcherOptions{Debounce: 100 * time.Millisecond}
	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f, err := LoadFile(abs)
	if err != nil {
		return nil, err
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// the directory is watched so atomic renames by editors are seen
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:    abs,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		fs:      fs,
		current: f,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Current returns the active configuration. Callers must not modify it.
func (w *Watcher) Current() *File {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback run after every reload that changed the
// configuration. A panicking callback does not affect the others.
func (w *Watcher) OnChange(callback func(old, new *File)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.debounceMu.Lock()
		if w.debounceTimer != nil {
			w.debounceTimer.Stop()
		}
		w.debounceMu.Unlock()
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) schedule() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.opts.Debounce, w.reload)
}

func (w *Watcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}

	next, err := LoadFile(w.path)
	if err != nil {
		w.fail(err)
		return
	}

	w.mu.Lock()
	old := w.current
	if reflect.DeepEqual(old, next) {
		w.mu.Unlock()
		return
	}
	w.current = next
	callbacks := make([]func(old, new *File), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("config.reload", "path", w.path, "provider", next.Call.Provider, "model", next.Call.Model)

	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					w.logger.Error("config.reload.callback_panic", "path", w.path, "recover", r)
				}
			}()
			cb(old, next)
		}()
	}
}

func (w *Watcher) fail(err error) {
	w.logger.Warn("config.reload.failed", "path", w.path, "error", err.Error())
	if w.opts.OnError != nil {
		w.opts.OnError(err)
	}
}
