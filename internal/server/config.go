package server

import (
	"github.com/winchesHe/devproxy/pkg/hmrproxy"
)

// Config holds all dev server configuration
type Config struct {
	Addr          string // Listen address (e.g., "127.0.0.1:8080")
	StaticDir     string // Served when no proxy rule matches; empty disables it
	EnableMetrics bool   // Expose /metrics
	Proxy         hmrproxy.Options
}
