// Package app wires the debug-info filter's library packages
// (pkg/fdcache, pkg/rescache, internal/iterator) together with the
// ambient HTTP/metrics/tracing stack into one process, the way the host
// log-shipping agent's own App type wires its monitors, dispatcher, and
// sinks together.
//
// The iterator pump itself is driven by a host graph/scheduler that is
// out of scope for this module (spec.md §1, "external collaborators");
// App does not supply one. What it owns is everything the pump needs to
// exist (fd-cache, per-trace mapping state, the resolved-info disk
// cache) and everything an operator needs to observe it (health check,
// Prometheus metrics, OpenTelemetry traces, a cache-introspection
// endpoint) — a caller embeds App, gets an Iterator from
// NewIterator(upstream), and
// drives Next()/SeekToBeginning() from whatever upstream it has.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/efficios/go-debuginfofilter/internal/config"
	"github.com/efficios/go-debuginfofilter/internal/iterator"
	"github.com/efficios/go-debuginfofilter/internal/metrics"
	"github.com/efficios/go-debuginfofilter/internal/tracing"
	"github.com/efficios/go-debuginfofilter/pkg/ctfir"
	"github.com/efficios/go-debuginfofilter/pkg/fdcache"
)

// App is the filter's process-level wiring: configuration, logging, the
// shared fd-cache, every Iterator built against it, and the ambient
// HTTP/metrics/tracing servers.
type App struct {
	config *config.Config
	logger *logrus.Logger

	fdc     *fdcache.Cache
	tracing *tracing.Manager

	itersMu sync.Mutex
	iters   []*iterator.Iterator

	httpServer    *http.Server
	metricsServer *metrics.MetricsServer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads configFile, validates it, and builds every component it
// configures, failing fast on the first error exactly as the host
// agent's own New does.
func New(configFile string) (*App, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	tracingMgr, err := tracing.NewManager(tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
		BatchTimeout:   5 * time.Second,
		Headers:        cfg.Tracing.Headers,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		config:  cfg,
		logger:  logger,
		fdc:     fdcache.New(),
		tracing: tracingMgr,
		ctx:     ctx,
		cancel:  cancel,
	}

	a.initHTTPServer()
	a.metricsServer = metrics.NewMetricsServer(
		fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port), logger)

	return a, nil
}

// NewIterator builds an Iterator pumping upstream, sharing this App's
// fd-cache, configuration, and logger. The caller (a host graph or
// scheduler, out of scope per spec.md §1) owns driving Next and
// SeekToBeginning against it; App tracks it only so Stop and the
// /debug/cache endpoint can reach its Stats/Close.
func (a *App) NewIterator(upstream ctfir.UpstreamIterator) *iterator.Iterator {
	it := iterator.New(upstream, iterator.Config{
		DebugInfoFieldName: a.config.DebugInfo.FieldName,
		DebugInfoDir:       a.config.DebugInfo.Dir,
		TargetPrefix:       a.config.DebugInfo.TargetPrefix,
		FullPath:           a.config.DebugInfo.FullPath,
		ResolvedInfoCache:  a.config.DebugInfo.ResolvedInfoCache,
		WatchDebugInfoDir:  a.config.DebugInfo.WatchDir,
	}, a.fdc, a.logger)
	it.SetTracer(a.tracing)

	a.itersMu.Lock()
	a.iters = append(a.iters, it)
	a.itersMu.Unlock()
	return it
}

// Start begins serving the HTTP and metrics endpoints in the background.
func (a *App) Start() error {
	a.logger.WithFields(logrus.Fields{
		"app":     a.config.App.Name,
		"version": a.config.App.Version,
	}).Info("starting debuginfofilter")

	if a.config.Metrics.Enabled {
		if err := a.metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	if a.config.Server.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.logger.WithField("addr", a.httpServer.Addr).Info("starting http server")
			if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.WithError(err).Error("http server error")
			}
		}()
	}

	return nil
}

// Stop shuts every component down, logging but not failing on individual
// component errors, mirroring the host agent's own best-effort Stop.
func (a *App) Stop() error {
	a.logger.Info("stopping debuginfofilter")
	a.cancel()

	if a.config.Server.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Error("failed to stop http server")
		}
	}

	if a.config.Metrics.Enabled {
		if err := a.metricsServer.Stop(); err != nil {
			a.logger.WithError(err).Error("failed to stop metrics server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.tracing.Shutdown(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("failed to shutdown tracing manager")
	}

	a.itersMu.Lock()
	for _, it := range a.iters {
		it.Close()
	}
	a.itersMu.Unlock()
	a.fdc.Close()

	a.wg.Wait()
	a.logger.Info("debuginfofilter stopped")
	return nil
}

// Run starts the app and blocks until SIGINT/SIGTERM, then shuts down.
func (a *App) Run() error {
	if err := a.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	a.logger.Info("shutdown signal received")
	return a.Stop()
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.App.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	return logger
}

func (a *App) initHTTPServer() {
	router := mux.NewRouter()
	a.registerHandlers(router)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
