package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dudu/beautycam/internal/logging"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 300 * time.Millisecond

// ReloadFunc receives the freshly loaded configuration.
type ReloadFunc func(*Config) error

// Watcher reloads a config file whenever it changes on disk. The file is
// re-read into the viper it was loaded with, so bound command line flags the
// user set keep precedence over the file.
type Watcher struct {
	path     string
	v        *viper.Viper
	watcher  *fsnotify.Watcher
	debounce func(func())
	logger   *zap.SugaredLogger

	mu        sync.Mutex
	callbacks []ReloadFunc
}

// NewWatcher watches the config file of v, as returned by New. The directory
// holding the file is watched, so editors that replace the file on save are
// still seen.
func NewWatcher(v *viper.Viper, period time.Duration, logger *zap.SugaredLogger) (*Watcher, error) {
	path := v.ConfigFileUsed()
	if path == "" {
		return nil, errors.New("no config file to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}
	if period <= 0 {
		period = DefaultDebounce
	}
	return &Watcher{
		path:     abs,
		v:        v,
		watcher:  fw,
		debounce: debounce.New(period),
		logger:   logging.Component(logger, "config"),
	}, nil
}

// OnReload registers fn. Callbacks run in registration order on the
// debounce timer goroutine.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Run watches until ctx is done and then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.logger.Debugw("config file changed", logging.FieldPath, event.Name, "op", event.Op.String())
			w.debounce(w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("config watcher error", logging.FieldError, err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.logger.Warnw("config reload failed, keeping previous settings", logging.FieldError, err)
		return
	}

	w.mu.Lock()
	callbacks := append([]ReloadFunc(nil), w.callbacks...)
	w.mu.Unlock()

	for _, fn := range callbacks {
		if err := fn(cfg); err != nil {
			w.logger.Warnw("config reload callback failed", logging.FieldError, err)
		}
	}
	w.logger.Infow("config reloaded", logging.FieldPath, w.path)
}

func (w *Watcher) load() (*Config, error) {
	if err := w.v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %s", w.path)
	}
	return FromViper(w.v)
}
