package proxy

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/chain"
	"github.com/winchesHe/devproxy/internal/rules"
	"github.com/winchesHe/devproxy/pkg/metrics"
)

// ErrRegistrationFailed is returned when proxy rules cannot be installed.
var ErrRegistrationFailed = errors.New("proxy registration failed")

// Span is the half-open range [Start, End) of chain entries installed by the
// registry, all stamped with Tag.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Tag   string `json:"tag"`
}

func (s Span) Len() int {
	return s.End - s.Start
}

// Registry owns the contiguous block of chain entries occupied by proxy rules.
//
// Removal uses the recorded index range when it still lines up with the
// registry's tag, and falls back to removal by tag when something else has
// inserted or removed entries in the meantime.
type Registry struct {
	chain  *chain.Chain
	logger *logrus.Logger

	mu    sync.Mutex
	span  Span
	valid bool
}

func NewRegistry(c *chain.Chain, logger *logrus.Logger) *Registry {
	return &Registry{
		chain:  c,
		logger: logger,
	}
}

// Register installs one forwarder per rule, in order, at the end of the chain.
func (r *Registry) Register(cfg *rules.RouteConfig) error {
	if r.chain == nil {
		return fmt.Errorf("%w: server chain is not initialized", ErrRegistrationFailed)
	}
	return r.chain.Update(func(tx *chain.Tx) error {
		return r.register(tx, cfg)
	})
}

// Unregister removes the entries installed by the last Register. It is a
// no-op when nothing is installed.
func (r *Registry) Unregister() {
	if r.chain == nil {
		return
	}
	_ = r.chain.Update(func(tx *chain.Tx) error {
		r.unregister(tx)
		return nil
	})
}

// Swap unregisters the current rules, runs between, and registers cfg, all
// while holding the chain exclusively. If between fails, cfg is not
// registered and the chain is left without proxy rules.
func (r *Registry) Swap(cfg *rules.RouteConfig, between func() error) error {
	if r.chain == nil {
		return fmt.Errorf("%w: server chain is not initialized", ErrRegistrationFailed)
	}
	return r.chain.Update(func(tx *chain.Tx) error {
		r.unregister(tx)
		if between != nil {
			if err := between(); err != nil {
				return err
			}
		}
		return r.register(tx, cfg)
	})
}

// Span returns the currently installed span and whether it is valid.
func (r *Registry) Span() (Span, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.span, r.valid
}

func (r *Registry) register(tx *chain.Tx, cfg *rules.RouteConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := tx.Len()
	end := start
	tag := uuid.NewString()

	var err error
	for _, rule := range cfg.Rules() {
		fwd, buildErr := NewForwarder(rule, r.logger)
		if buildErr != nil {
			err = fmt.Errorf("%w: %s: %v", ErrRegistrationFailed, rule.Context, buildErr)
			break
		}
		end = tx.Use(tag, rule.Context, fwd.Handle)
	}

	// A partial install is still recorded so the next Unregister removes it.
	r.span = Span{Start: start, End: end, Tag: tag}
	r.valid = true
	metrics.RoutesActive.Set(float64(end - start))

	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"start":  start,
		"end":    end,
		"routes": cfg.Len(),
	}).Debug("Registered proxy routes")
	return nil
}

func (r *Registry) unregister(tx *chain.Tx) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.valid {
		return
	}
	r.valid = false
	metrics.RoutesActive.Set(0)

	if r.spanIntact(tx.Entries()) {
		if err := tx.RemoveRange(r.span.Start, r.span.End); err == nil {
			return
		}
	}

	removed := tx.RemoveTag(r.span.Tag)
	r.logger.WithFields(logrus.Fields{
		"start":   r.span.Start,
		"end":     r.span.End,
		"removed": removed,
	}).Warn("Middleware chain changed since proxy routes were registered; removed by tag")
}

func (r *Registry) spanIntact(entries []chain.Entry) bool {
	if r.span.Start < 0 || r.span.End > len(entries) {
		return false
	}
	for i := r.span.Start; i < r.span.End; i++ {
		if entries[i].Tag != r.span.Tag {
			return false
		}
	}
	return true
}
