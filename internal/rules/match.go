package rules

import (
	"path"
	"strings"
)

// Matches reports whether a request path falls under a route context.
//
// A context containing glob characters is matched with path.Match against the
// request path and each of its parent prefixes; otherwise the context is a
// path prefix that must end on a segment boundary ("/api" matches "/api" and
// "/api/users" but not "/apiv2").
func Matches(context, requestPath string) bool {
	if context == "/" {
		return true
	}
	if strings.ContainsAny(context, "*?[") {
		return globMatch(context, requestPath)
	}
	if !strings.HasPrefix(requestPath, context) {
		return false
	}
	rest := requestPath[len(context):]
	return rest == "" || strings.HasSuffix(context, "/") || strings.HasPrefix(rest, "/")
}

func globMatch(pattern, requestPath string) bool {
	for p := requestPath; ; {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		idx := strings.LastIndex(p, "/")
		if idx <= 0 {
			return false
		}
		p = p[:idx]
	}
}
