package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/catalog"
	"mcpscene/internal/infra/httpapi"
	"mcpscene/internal/infra/monitor"
	"mcpscene/internal/infra/orchestrator"
	"mcpscene/internal/infra/registry"
	"mcpscene/internal/infra/resultcache"
	"mcpscene/internal/infra/scene"
	"mcpscene/internal/infra/settings"
	"mcpscene/internal/infra/telemetry"
	"mcpscene/internal/infra/transport"
)

func NewMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())
	return registry
}

func NewMetrics(registry *prometheus.Registry) domain.Metrics {
	return telemetry.NewPrometheusMetrics(registry)
}

func NewHealthTracker() *telemetry.HealthTracker {
	return telemetry.NewHealthTracker()
}

func NewResultCache() *resultcache.Cache {
	return resultcache.New(resultcache.Options{})
}

func NewToolDialer(metrics domain.Metrics, logger *zap.Logger) *transport.Dialer {
	return &transport.Dialer{Logger: logger, Metrics: metrics}
}

func NewToolRegistry(dialer domain.ToolDialer, cache *resultcache.Cache, metrics domain.Metrics, logger *zap.Logger) (*registry.Registry, error) {
	return registry.New(registry.Options{
		Dialer:  dialer,
		Cache:   cache,
		Metrics: metrics,
		Logger:  logger,
	})
}

func NewSceneClassifier(logger *zap.Logger) *scene.Classifier {
	return scene.NewClassifier(scene.ClassifierOptions{Logger: logger})
}

func NewCatalogLoader(logger *zap.Logger) *catalog.Loader {
	return catalog.NewLoader(logger)
}

// NewSettingsStore opens the overlay store on top of the catalog file. The
// cleanup func closes it.
func NewSettingsStore(cfg ServeConfig, loader *catalog.Loader, logger *zap.Logger) (*settings.Store, func(), error) {
	store, err := settings.Open(settings.Options{
		Path:   cfg.SettingsPath,
		Base:   catalog.NewFileSource(loader, cfg.CatalogPath),
		Logger: logger,
	})
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("settings store close failed", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

func NewEngine(
	cfg ServeConfig,
	classifier *scene.Classifier,
	tools *registry.Registry,
	store *settings.Store,
	metrics domain.Metrics,
	logger *zap.Logger,
) (*orchestrator.Engine, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return orchestrator.NewEngine(orchestrator.Options{
		Analyzer: classifier,
		Registry: tools,
		Source:   store,
		Metrics:  metrics,
		Logger:   logger,
		Location: loc,
	}), nil
}

func NewMonitor(cfg ServeConfig, tools *registry.Registry, health *telemetry.HealthTracker, logger *zap.Logger) (*monitor.Monitor, error) {
	return monitor.New(monitor.Options{
		Registry: tools,
		Schedule: cfg.HealthSchedule,
		Health:   health,
		Logger:   logger,
	})
}

// NewCatalogWatcher reapplies the catalog file, with the stored overlay on
// top, whenever the file changes. Nil when watching is off.
func NewCatalogWatcher(cfg ServeConfig, loader *catalog.Loader, store *settings.Store, engine *orchestrator.Engine, logger *zap.Logger) *catalog.Watcher {
	if !cfg.WatchCatalog {
		return nil
	}
	return catalog.NewWatcher(catalog.WatcherOptions{
		Loader: loader,
		Path:   cfg.CatalogPath,
		Logger: logger,
		Apply: func(ctx context.Context, _ domain.Catalog) {
			merged, err := store.Load(ctx)
			if err != nil {
				logger.Warn("catalog reload skipped", zap.Error(err))
				return
			}
			engine.ApplyCatalog(ctx, merged)
		},
	})
}

func NewAdminServer(
	engine *orchestrator.Engine,
	tools *registry.Registry,
	loader *catalog.Loader,
	store *settings.Store,
	logs *telemetry.LogBroadcaster,
	logger *zap.Logger,
) *httpapi.Server {
	return httpapi.New(httpapi.Options{
		Engine:   engine,
		Registry: tools,
		Cache:    tools.Cache(),
		Decoder:  loader,
		Store:    store,
		Logs:     logs,
		Logger:   logger,
	})
}
