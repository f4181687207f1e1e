package config

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Overrides is the subset of Config an operator may flip at runtime via
// a local YAML file, without restarting the control plane.
type Overrides struct {
	SlackEnabled       *bool          `yaml:"slack_enabled"`
	ReconcileInterval  *time.Duration `yaml:"reconcile_interval"`
	HealthInterval     *time.Duration `yaml:"health_interval"`
	TerminateInterval  *time.Duration `yaml:"terminate_interval"`
	CancelInterval     *time.Duration `yaml:"cancel_interval"`
	ExpirationInterval *time.Duration `yaml:"expiration_interval"`
}

func (o Overrides) apply(c Config) Config {
	if o.SlackEnabled != nil {
		c.Slack.Enabled = *o.SlackEnabled
	}
	if o.ReconcileInterval != nil {
		c.Controller.ReconcileInterval = *o.ReconcileInterval
	}
	if o.HealthInterval != nil {
		c.Controller.HealthInterval = *o.HealthInterval
	}
	if o.TerminateInterval != nil {
		c.Controller.TerminateInterval = *o.TerminateInterval
	}
	if o.CancelInterval != nil {
		c.Controller.CancelInterval = *o.CancelInterval
	}
	if o.ExpirationInterval != nil {
		c.Controller.ExpirationInterval = *o.ExpirationInterval
	}
	return c
}

// Watcher hot-reloads an optional operator-override file on top of a
// base Config, so the Slack notifier or loop intervals can change
// without a restart. Live reads always go through Current.
type Watcher struct {
	current *atomic.Pointer[Config]
	base    Config
	path    string
	logger  *zap.Logger
}

// NewWatcher seeds current with base and, if path names an existing
// file, parses it immediately and starts watching it for writes.
func NewWatcher(base Config, path string, logger *zap.Logger) (*Watcher, error) {
	current := &atomic.Pointer[Config]{}
	current.Store(&base)

	w := &Watcher{current: current, base: base, path: path, logger: logger}
	if path == "" {
		return w, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return w, nil
	}

	if err := w.reload(base); err != nil {
		return nil, err
	}
	return w, nil
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	return *w.current.Load()
}

func (w *Watcher) reload(base Config) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	var overrides Overrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return err
	}
	merged := overrides.apply(base)
	w.current.Store(&merged)
	return nil
}

// Watch blocks processing fsnotify events for the override file until
// stop closes. It is a no-op when the watcher
// was constructed with an empty path.
func (w *Watcher) Watch(stop <-chan struct{}) error {
	if w.path == "" {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.path); err != nil {
		return err
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(w.base); err != nil && w.logger != nil {
				w.logger.Warn("failed to reload config overrides", zap.String("path", w.path), zap.Error(err))
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.logger != nil {
				w.logger.Warn("config override watcher error", zap.Error(err))
			}
		}
	}
}
