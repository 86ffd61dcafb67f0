//go:build wireinject
// +build wireinject

package app

import (
	"github.com/google/wire"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/transport"
)

var CoreInfraSet = wire.NewSet(
	NewLogging,
	NewLogger,
	NewLogBroadcaster,
	NewMetricsRegistry,
	NewMetrics,
	NewHealthTracker,
)

var ToolSet = wire.NewSet(
	NewResultCache,
	NewToolDialer,
	wire.Bind(new(domain.ToolDialer), new(*transport.Dialer)),
	NewToolRegistry,
	NewSceneClassifier,
)

var CatalogSet = wire.NewSet(
	NewCatalogLoader,
	NewSettingsStore,
	NewCatalogWatcher,
)

var AppSet = wire.NewSet(
	CoreInfraSet,
	ToolSet,
	CatalogSet,
	NewEngine,
	NewMonitor,
	NewAdminServer,
	wire.Struct(new(ApplicationOptions), "*"),
	NewApplication,
)
