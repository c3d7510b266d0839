// Package loader reads proxy rule configuration files and tracks the files a
// configuration depends on through its include lists.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/cache"
	"github.com/winchesHe/devproxy/internal/rules"
)

// Loader loads RouteConfigs from disk. Parsed documents are kept in an owned
// cache that Load invalidates before every read.
type Loader struct {
	cache  *cache.Cache[*Document]
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Loader {
	return &Loader{
		cache:  cache.NewCache[*Document](),
		logger: logger,
	}
}

// Load returns the merged route configuration of the entry file at path and
// everything it includes, as currently on disk.
func (l *Loader) Load(path string) (*rules.RouteConfig, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}

	stale := l.cachedClosure(abs)
	l.cache.Delete(stale...)
	l.logger.WithFields(logrus.Fields{
		"path":        abs,
		"invalidated": len(stale),
		"cached":      l.cache.Keys(),
	}).Debug("Invalidated cached config documents")

	cfg := rules.NewRouteConfig()
	found := false
	visited := make(map[string]bool)

	var walk func(p string) error
	walk = func(p string) error {
		if visited[p] {
			return nil
		}
		visited[p] = true

		doc, err := l.document(p)
		if err != nil {
			if p != abs && errors.Is(err, ErrConfigNotFound) {
				return fmt.Errorf("%w: include %s does not exist", ErrConfigMalformed, p)
			}
			return err
		}
		for _, inc := range doc.Includes {
			if err := walk(inc); err != nil {
				return err
			}
		}
		if doc.Proxy != nil {
			found = true
			cfg.Merge(doc.Proxy)
		}
		return nil
	}
	if err := walk(abs); err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s does not define devServer.proxy", ErrConfigMalformed, abs)
	}
	for _, rule := range cfg.Rules() {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrConfigMalformed, abs, err)
		}
	}
	return cfg, nil
}

// document returns the parsed document at path, reading it on a cache miss.
func (l *Loader) document(path string) (*Document, error) {
	if doc, ok := l.cache.Get(path); ok {
		return doc, nil
	}
	doc, err := parseDocument(path)
	if err != nil {
		return nil, err
	}
	l.cache.Set(path, doc)
	return doc, nil
}

// cachedClosure lists path and every document reachable from it through
// cached include lists.
func (l *Loader) cachedClosure(path string) []string {
	seen := map[string]bool{path: true}
	out := []string{path}
	queue := []string{path}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		doc, ok := l.cache.Get(p)
		if !ok {
			continue
		}
		for _, inc := range doc.Includes {
			if !seen[inc] {
				seen[inc] = true
				out = append(out, inc)
				queue = append(queue, inc)
			}
		}
	}
	return out
}

// Cached reports whether a parsed document for path is currently cached.
func (l *Loader) Cached(path string) bool {
	_, ok := l.cache.Get(path)
	return ok
}
