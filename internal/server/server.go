package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/winchesHe/devproxy/internal/middleware"
	"github.com/winchesHe/devproxy/pkg/hmrproxy"
	"github.com/winchesHe/devproxy/pkg/metrics"
	"github.com/winchesHe/devproxy/pkg/version"
)

const (
	adminPrefix     = "/__devproxy"
	shutdownTimeout = 5 * time.Second
)

type BaseServer struct {
	config *Config
	logger *logrus.Logger
	router *gin.Engine
}

func init() {
	// Set Gin mode to release by default
	gin.SetMode(gin.ReleaseMode)
	// Requests are logged through logrus
	gin.DefaultWriter = io.Discard
}

func NewBaseServer(config *Config, logger *logrus.Logger) *BaseServer {
	router := gin.New()
	// Unmatched paths belong to the proxy rules, including "/health/".
	router.RedirectTrailingSlash = false
	router.Use(gin.Recovery())

	return &BaseServer{
		config: config,
		logger: logger,
		router: router,
	}
}

// setupHealthCheck adds a health check endpoint to the server
func (s *BaseServer) setupHealthCheck() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
}

// DevServer serves the hot-reloading proxy rules, falling back to static
// files when no rule matches.
type DevServer struct {
	*BaseServer
	proxy *hmrproxy.Proxy
}

func NewDevServer(config *Config, logger *logrus.Logger) (*DevServer, error) {
	s := &DevServer{BaseServer: NewBaseServer(config, logger)}

	s.router.Use(
		middleware.RequestID(),
		middleware.NewMetricsMiddleware(logger).MetricsMiddleware(),
	)

	// Routes registered before the proxy chain is mounted are never proxied.
	s.setupHealthCheck()
	s.setupAdminRoutes()

	opts := config.Proxy
	if opts.Logger == nil {
		opts.Logger = logger
	}
	p, err := hmrproxy.Use(s.router, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to install proxy rules: %w", err)
	}
	s.proxy = p

	if config.StaticDir != "" {
		s.router.NoRoute(s.staticFallback(config.StaticDir))
	} else {
		s.router.NoRoute(notFound)
	}
	return s, nil
}

func (s *DevServer) setupAdminRoutes() {
	admin := s.router.Group(adminPrefix)
	admin.GET("/routes", func(c *gin.Context) {
		writeJSON(c, http.StatusOK, "ok", s.proxy.Status())
	})
	admin.GET("/version", func(c *gin.Context) {
		writeJSON(c, http.StatusOK, "ok", version.GetInfo())
	})

	if s.config.EnableMetrics {
		s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
}

func (s *DevServer) staticFallback(dir string) gin.HandlerFunc {
	index := filepath.Join(dir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			notFound(c)
			return
		}

		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+c.Request.URL.Path)))
		if info, err := os.Stat(name); err == nil && !info.IsDir() {
			c.File(name)
			return
		}
		// History-mode routing of single page apps
		if _, err := os.Stat(index); err == nil {
			c.File(index)
			return
		}
		notFound(c)
	}
}

func notFound(c *gin.Context) {
	writeJSON(c, http.StatusNotFound, "no proxy rule or static file matches "+c.Request.URL.Path, nil)
}

// Run serves until ctx is done, applying proxy config changes meanwhile.
func (s *DevServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	defer s.proxy.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.WithFields(logrus.Fields{
			"addr":  s.config.Addr,
			"proxy": s.proxy.Path(),
		}).Info("Dev server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve on %s: %w", s.config.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		if err := s.proxy.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down dev server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Handler returns the root handler, for embedding in another server.
func (s *DevServer) Handler() http.Handler {
	return s.router
}
