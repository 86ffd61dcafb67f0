package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpscene/internal/infra/catalog"
	"mcpscene/internal/infra/httpapi"
	"mcpscene/internal/infra/monitor"
	"mcpscene/internal/infra/orchestrator"
	"mcpscene/internal/infra/telemetry"
)

const defaultShutdownTimeout = 10 * time.Second

// Application wires the engine to its background jobs and servers.
type Application struct {
	cfg      ServeConfig
	logger   *zap.Logger
	registry *prometheus.Registry
	health   *telemetry.HealthTracker
	engine   *orchestrator.Engine
	monitor  *monitor.Monitor
	watcher  *catalog.Watcher
	admin    *httpapi.Server
}

// ApplicationOptions captures dependencies and settings for Application.
type ApplicationOptions struct {
	ServeConfig ServeConfig
	Logger      *zap.Logger
	Registry    *prometheus.Registry
	Health      *telemetry.HealthTracker
	Engine      *orchestrator.Engine
	Monitor     *monitor.Monitor
	Watcher     *catalog.Watcher
	Admin       *httpapi.Server
}

func NewApplication(opts ApplicationOptions) *Application {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Application{
		cfg:      opts.ServeConfig,
		logger:   logger.Named("app"),
		registry: opts.Registry,
		health:   opts.Health,
		engine:   opts.Engine,
		monitor:  opts.Monitor,
		watcher:  opts.Watcher,
		admin:    opts.Admin,
	}
}

// Run initializes the engine, starts the servers and background jobs, and
// blocks until ctx is done or a server fails.
func (a *Application) Run(ctx context.Context) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, telemetry.TracingOptions{
		Endpoint: a.cfg.OTLPEndpoint,
		Insecure: a.cfg.OTLPInsecure,
	}, a.logger)
	if err != nil {
		return err
	}

	if err := a.engine.Initialize(ctx); err != nil {
		a.logger.Warn("engine initialization failed", zap.Error(err))
	}
	a.logger.Info("engine started",
		zap.String("catalog", a.cfg.CatalogPath),
		zap.String("settings", a.cfg.SettingsPath),
		zap.String("state", string(a.engine.State())),
		zap.String("version", Version),
	)

	if a.monitor != nil {
		if err := a.monitor.Start(); err != nil {
			a.logger.Warn("health monitor start failed", zap.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		if err == nil {
			return
		}
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}
	spawn := func(fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(fn(runCtx))
		}()
	}

	if a.watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A missing catalog directory only disables hot reload.
			if err := a.watcher.Run(runCtx); err != nil {
				a.logger.Warn("catalog watcher stopped", zap.Error(err))
			}
		}()
	}
	spawn(func(ctx context.Context) error {
		return telemetry.StartHTTPServer(ctx, telemetry.HTTPServerOptions{
			Addr:          a.cfg.MetricsAddr,
			EnableMetrics: a.cfg.MetricsEnabled,
			EnableHealthz: a.cfg.HealthzEnabled,
			Health:        a.health,
			Registry:      a.registry,
			EngineState:   a.engine.State,
			DrainTimeout:  a.cfg.Shutdown,
		}, a.logger)
	})
	spawn(func(ctx context.Context) error {
		return a.admin.ListenAndServe(ctx, a.cfg.AdminAddr)
	})

	<-runCtx.Done()
	wg.Wait()

	timeout := a.cfg.Shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	if a.monitor != nil {
		a.monitor.Stop(stopCtx)
	}
	a.engine.Cleanup()
	if err := shutdownTracing(stopCtx); err != nil {
		a.logger.Warn("trace shutdown failed", zap.Error(err))
	}

	if firstErr != nil && !errors.Is(firstErr, context.Canceled) {
		return firstErr
	}
	return nil
}
