package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// DependencySet is a set of absolute file paths.
type DependencySet map[string]struct{}

func NewDependencySet(paths ...string) DependencySet {
	s := make(DependencySet, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s DependencySet) Add(path string) {
	s[path] = struct{}{}
}

func (s DependencySet) Has(path string) bool {
	_, ok := s[path]
	return ok
}

// Paths returns the members in sorted order.
func (s DependencySet) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Equal reports set equality.
func (s DependencySet) Equal(other DependencySet) bool {
	if len(s) != len(other) {
		return false
	}
	for p := range s {
		if !other.Has(p) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the set.
func (s DependencySet) Clone() DependencySet {
	out := make(DependencySet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// Tracker determines the files a configuration entry depends on.
type Tracker interface {
	Collect(entry string) (DependencySet, error)
}

// Shallow tracks only the entry file itself.
type Shallow struct{}

func (Shallow) Collect(entry string) (DependencySet, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, err
	}
	return NewDependencySet(abs), nil
}

// DeepTracker walks the include graph of the entry file transitively.
// Documents are read through the loader's cache, which the walk populates.
type DeepTracker struct {
	loader *Loader
}

func NewDeepTracker(loader *Loader) *DeepTracker {
	return &DeepTracker{loader: loader}
}

// Collect returns the entry path plus every file reachable through include.
// An included file that does not exist is still recorded so that its
// creation is noticed, but it is not descended into.
func (t *DeepTracker) Collect(entry string) (DependencySet, error) {
	abs, err := filepath.Abs(entry)
	if err != nil {
		return nil, err
	}

	deps := NewDependencySet(abs)
	var walk func(path string) error
	walk = func(path string) error {
		doc, err := t.loader.document(path)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) && path != abs {
				return nil
			}
			return fmt.Errorf("collect dependencies of %s: %w", path, err)
		}
		for _, inc := range doc.Includes {
			if deps.Has(inc) {
				continue
			}
			deps.Add(inc)
			if err := walk(inc); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(abs); err != nil {
		return nil, err
	}
	return deps, nil
}
