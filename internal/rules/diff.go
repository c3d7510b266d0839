package rules

import (
	"fmt"
	"reflect"
)

// Equivalent reports whether next carries no material change relative to old.
//
// An empty old config matches anything. Otherwise both configs must list the
// same route contexts in the same order, and every option of an old rule must
// be matched by the next rule. Options present only in next are ignored.
func Equivalent(old, next *RouteConfig) bool {
	if old.Len() == 0 {
		return true
	}
	if old.Len() != next.Len() {
		return false
	}

	oldContexts := old.Contexts()
	newContexts := next.Contexts()
	for i := range oldContexts {
		if oldContexts[i] != newContexts[i] {
			return false
		}
	}

	for _, oldRule := range old.Rules() {
		newRule, _ := next.Get(oldRule.Context)
		if !isMatch(oldRule.Options, newRule.Options) {
			return false
		}
	}
	return true
}

// isMatch performs a partial deep comparison: want is matched by got when
// every key of want is matched in got.
func isMatch(want, got any) bool {
	switch w := want.(type) {
	case nil:
		return got == nil
	case map[string]any:
		g, ok := toStringMap(got)
		if !ok {
			return false
		}
		for k, wv := range w {
			gv, exists := g[k]
			if !exists || !isMatch(wv, gv) {
				return false
			}
		}
		return true
	case map[string]string:
		return isMatch(stringMapToAny(w), got)
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range w {
			if !isMatch(w[i], g[i]) {
				return false
			}
		}
		return true
	}

	if wn, ok := toFloat(want); ok {
		gn, ok := toFloat(got)
		return ok && wn == gn
	}
	return reflect.DeepEqual(want, got)
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		return stringMapToAny(m), true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
