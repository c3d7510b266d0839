// Package hmrproxy installs hot-reloading proxy rules on a gin server.
//
// The rules are read from a proxy, webpack or vue config file (YAML or JSON)
// under devServer.proxy. Whenever that file or any file it includes changes,
// the rules are reloaded and swapped in place while the server keeps running.
//
//	router := gin.New()
//	p, err := hmrproxy.Use(router, &hmrproxy.Options{ShowProxy: true})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//	go p.Run(ctx)
package hmrproxy

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/chain"
	"github.com/winchesHe/devproxy/internal/loader"
	"github.com/winchesHe/devproxy/internal/proxy"
	"github.com/winchesHe/devproxy/internal/reload"
	"github.com/winchesHe/devproxy/internal/watcher"
)

type Options struct {
	// Path of the proxy config file. When empty, proxy.config, webpack.config
	// and vue.config are looked up in Dir.
	Path string
	// Dir is the directory for the convention lookup and for a relative Path.
	// Defaults to the working directory.
	Dir string
	// ShowProxy logs the active rules after every successful reload.
	ShowProxy bool
	// Shallow watches the entry file only; included files are still merged
	// but editing them does not trigger a reload.
	Shallow bool
	// Middlewares is a chain the caller mounts itself. When set, rules are
	// installed there and the router is left untouched.
	Middlewares *chain.Chain
	// ProbeUpstreams checks every target after each install.
	ProbeUpstreams bool
	ProbeTimeout   time.Duration
	Logger         *logrus.Logger
}

// Proxy is a running set of hot-reloading proxy rules.
type Proxy struct {
	path    string
	chain   *chain.Chain
	engine  *reload.Engine
	watcher *watcher.Watcher
}

// Use loads the proxy rules, installs them on router (or opts.Middlewares)
// and starts watching their files. Call Run to start applying changes.
func Use(router gin.IRoutes, opts *Options) (*Proxy, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	path, err := loader.Resolve(opts.Path, dir)
	if err != nil {
		return nil, err
	}

	c := opts.Middlewares
	if c == nil {
		if router == nil {
			return nil, fmt.Errorf("%w: no router or middleware chain given", proxy.ErrRegistrationFailed)
		}
		c = chain.New()
		router.Use(c.Handler())
	}

	l := loader.New(logger)
	var tracker loader.Tracker = loader.NewDeepTracker(l)
	if opts.Shallow {
		tracker = loader.Shallow{}
	}
	deps, err := tracker.Collect(path)
	if err != nil {
		return nil, err
	}

	w, err := watcher.New(deps, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	registry := proxy.NewRegistry(c, logger)
	engine := reload.New(reload.Config{
		Path:      path,
		ShowProxy: opts.ShowProxy,
	}, l, tracker, registry, w, deps, logger)

	if opts.ProbeUpstreams {
		timeout := opts.ProbeTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		engine.WithProber(proxy.NewProber(logger, timeout))
	}

	if err := engine.Start(); err != nil {
		_ = w.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":    path,
		"watched": len(deps),
	}).Info("Watching proxy config")

	return &Proxy{
		path:    path,
		chain:   c,
		engine:  engine,
		watcher: w,
	}, nil
}

// Run applies config changes until ctx is done or Close is called.
func (p *Proxy) Run(ctx context.Context) error {
	return p.engine.Run(ctx)
}

// Close stops watching the config files. Installed rules stay in place.
func (p *Proxy) Close() error {
	return p.watcher.Close()
}

// Path returns the resolved config file path.
func (p *Proxy) Path() string {
	return p.path
}

// Chain returns the chain the rules are installed on.
func (p *Proxy) Chain() *chain.Chain {
	return p.chain
}

// Status reports the installed rules and reload counters.
func (p *Proxy) Status() reload.Status {
	return p.engine.Status()
}
