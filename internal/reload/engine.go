// Package reload swaps the installed proxy rules whenever the configuration
// files they were loaded from change.
package reload

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/loader"
	"github.com/winchesHe/devproxy/internal/proxy"
	"github.com/winchesHe/devproxy/internal/rules"
	"github.com/winchesHe/devproxy/internal/watcher"
	"github.com/winchesHe/devproxy/pkg/metrics"
)

type State int32

const (
	Idle State = iota
	Reloading
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Reloading:
		return "reloading"
	case Faulted:
		return "faulted"
	}
	return "unknown"
}

// ConfigLoader loads a fresh RouteConfig from path.
type ConfigLoader interface {
	Load(path string) (*rules.RouteConfig, error)
}

// Registry installs and replaces proxy rules on the server chain.
type Registry interface {
	Register(cfg *rules.RouteConfig) error
	Swap(cfg *rules.RouteConfig, between func() error) error
	Span() (proxy.Span, bool)
}

// Watcher is the source of file events and the owner of the watched set.
type Watcher interface {
	Events() <-chan watcher.Event
	Reconcile(old, next loader.DependencySet)
}

// Prober checks rule targets after an install.
type Prober interface {
	Probe(cfg *rules.RouteConfig) []proxy.ProbeResult
}

type Config struct {
	Path      string
	ShowProxy bool
}

// Engine processes watch events one at a time. For each event it loads the
// configuration again and, when it differs from the baseline, unregisters the
// installed rules, recollects dependencies, reconciles the watcher and
// registers the new rules.
type Engine struct {
	config   Config
	loader   ConfigLoader
	tracker  loader.Tracker
	registry Registry
	watcher  Watcher
	prober   Prober
	logger   *logrus.Logger

	state   atomic.Int32
	reloads atomic.Int64
	faults  atomic.Int64

	mu       sync.RWMutex
	baseline *rules.RouteConfig
	deps     loader.DependencySet
	lastErr  error
}

// New creates an engine. deps is the dependency set the watcher was created
// with.
func New(config Config, l ConfigLoader, tracker loader.Tracker, registry Registry, w Watcher, deps loader.DependencySet, logger *logrus.Logger) *Engine {
	return &Engine{
		config:   config,
		loader:   l,
		tracker:  tracker,
		registry: registry,
		watcher:  w,
		logger:   logger,
		deps:     deps.Clone(),
	}
}

// WithProber makes the engine probe rule targets after every install.
func (e *Engine) WithProber(p Prober) *Engine {
	e.prober = p
	return e
}

// Start loads the configuration and registers it without comparing against
// a baseline.
func (e *Engine) Start() error {
	cfg, err := e.loader.Load(e.config.Path)
	if err != nil {
		return err
	}
	if err := e.registry.Register(cfg); err != nil {
		return err
	}

	e.mu.Lock()
	e.baseline = cfg
	e.mu.Unlock()
	e.state.Store(int32(Idle))

	e.logger.WithFields(logrus.Fields{
		"path":   e.config.Path,
		"routes": cfg.Len(),
	}).Info("Proxy routes registered")
	e.showRules(cfg)
	e.probe(cfg)
	return nil
}

// Run handles watcher events until ctx is done or the event channel closes.
func (e *Engine) Run(ctx context.Context) error {
	events := e.watcher.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = e.HandleEvent(ev)
		}
	}
}

// HandleEvent runs one reload cycle for ev. Errors are logged and returned;
// the engine is ready for the next event either way.
func (e *Engine) HandleEvent(ev watcher.Event) error {
	e.state.Store(int32(Reloading))
	logger := e.logger.WithFields(logrus.Fields{
		"op":   ev.Op,
		"file": ev.Path,
	})

	fresh, err := e.loader.Load(e.config.Path)
	if err != nil {
		return e.fault(logger, err)
	}

	e.mu.RLock()
	baseline := e.baseline
	oldDeps := e.deps.Clone()
	e.mu.RUnlock()

	// An empty baseline would match anything, so it is always replaced.
	if baseline.Len() > 0 && rules.Equivalent(baseline, fresh) {
		e.refreshDeps(logger, oldDeps)
		metrics.ReloadTotal.WithLabelValues(metrics.ReloadUnchanged).Inc()
		logger.Debug("Proxy config unchanged, skipping reload")
		e.state.Store(int32(Idle))
		return nil
	}

	newDeps := oldDeps
	err = e.registry.Swap(fresh, func() error {
		next, err := e.tracker.Collect(e.config.Path)
		if err != nil {
			logger.WithError(err).Warn("Failed to collect config dependencies, keeping previous watch set")
			return nil
		}
		e.watcher.Reconcile(oldDeps, next)
		newDeps = next
		return nil
	})
	if err != nil {
		return e.fault(logger, err)
	}

	e.mu.Lock()
	e.baseline = fresh
	e.deps = newDeps
	e.lastErr = nil
	e.mu.Unlock()

	e.reloads.Add(1)
	metrics.ReloadTotal.WithLabelValues(metrics.ReloadSuccess).Inc()
	logger.WithField("routes", fresh.Len()).Info("Proxy server hot reload success")
	e.showRules(fresh)
	e.probe(fresh)

	e.state.Store(int32(Idle))
	return nil
}

// refreshDeps picks up include changes that left the rules themselves
// untouched.
func (e *Engine) refreshDeps(logger *logrus.Entry, oldDeps loader.DependencySet) {
	next, err := e.tracker.Collect(e.config.Path)
	if err != nil {
		logger.WithError(err).Warn("Failed to collect config dependencies")
		return
	}
	if next.Equal(oldDeps) {
		return
	}
	e.watcher.Reconcile(oldDeps, next)

	e.mu.Lock()
	e.deps = next
	e.mu.Unlock()
}

func (e *Engine) fault(logger *logrus.Entry, err error) error {
	e.state.Store(int32(Faulted))
	e.faults.Add(1)
	metrics.ReloadTotal.WithLabelValues(metrics.ReloadError).Inc()
	logger.WithError(err).Error("Proxy server hot reload failed")

	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()

	e.state.Store(int32(Idle))
	return err
}

func (e *Engine) showRules(cfg *rules.RouteConfig) {
	if !e.config.ShowProxy {
		return
	}
	for _, rule := range cfg.Rules() {
		e.logger.WithFields(logrus.Fields{
			"context": rule.Context,
			"target":  rule.Options["target"],
		}).Info("Proxy route")
	}
}

func (e *Engine) probe(cfg *rules.RouteConfig) {
	if e.prober != nil {
		e.prober.Probe(cfg)
	}
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Baseline returns the last installed configuration.
func (e *Engine) Baseline() *rules.RouteConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baseline
}

// Deps returns the dependency set of the installed configuration.
func (e *Engine) Deps() loader.DependencySet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.deps.Clone()
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     string            `json:"state"`
	Path      string            `json:"path"`
	Routes    []rules.RouteRule `json:"routes"`
	Span      *proxy.Span       `json:"span,omitempty"`
	Deps      []string          `json:"deps"`
	Reloads   int64             `json:"reloads"`
	Faults    int64             `json:"faults"`
	LastError string            `json:"last_error,omitempty"`
}

func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := Status{
		State:   e.State().String(),
		Path:    e.config.Path,
		Routes:  e.baseline.Rules(),
		Deps:    e.deps.Paths(),
		Reloads: e.reloads.Load(),
		Faults:  e.faults.Load(),
	}
	if span, ok := e.registry.Span(); ok {
		status.Span = &span
	}
	if e.lastErr != nil {
		status.LastError = e.lastErr.Error()
	}
	return status
}
