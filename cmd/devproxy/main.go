package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/winchesHe/devproxy/internal/server"
	"github.com/winchesHe/devproxy/pkg/config"
	"github.com/winchesHe/devproxy/pkg/hmrproxy"
	"github.com/winchesHe/devproxy/pkg/metrics"
	"github.com/winchesHe/devproxy/pkg/version"
)

func main() {
	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if showVersion, _ := flags.GetBool("version"); showVersion {
		fmt.Println(version.GetInfo())
		return
	}

	// Load configuration
	cfg, err := config.Load(flags)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Log)

	if cfg.Metrics.Enabled {
		metrics.Initialize(metrics.MetricsConfig{
			EnableLatency:        true,
			EnableDetailedStatus: cfg.Metrics.DetailedStatus,
		})
	}

	srv, err := server.NewDevServer(&server.Config{
		Addr:          cfg.Server.Addr(),
		StaticDir:     cfg.Server.StaticDir,
		EnableMetrics: cfg.Metrics.Enabled,
		Proxy: hmrproxy.Options{
			Path:           cfg.Proxy.Path,
			ShowProxy:      cfg.Proxy.ShowProxy,
			Shallow:        cfg.Proxy.Shallow,
			ProbeUpstreams: cfg.Proxy.ProbeUpstreams,
			ProbeTimeout:   cfg.Proxy.ProbeTimeout,
			Logger:         logger,
		},
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to start dev server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Dev server stopped")
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithField("level", cfg.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
