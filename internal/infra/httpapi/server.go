// Package httpapi serves the administrative control plane and the payload
// event stream.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

// BasePath prefixes every control plane route.
const BasePath = "/api/plugins/mcp-integration"

const maxBodyBytes = 1 << 20

// Engine is the orchestration surface exposed over HTTP.
type Engine interface {
	State() domain.EngineState
	Enabled() bool
	SetEnabled(enabled bool) error
	Settings() domain.EngineSettings
	UpdateSettings(patch domain.SettingsPatch) domain.EngineSettings
	ApplyCatalog(ctx context.Context, catalog domain.Catalog) int
	Stats() domain.Stats
	ResetStats()
	Analyze(actx domain.AnalysisContext) domain.SceneAnalysis
	ProcessTurn(ctx context.Context, turn domain.Turn) *domain.EnhancementPayload
	Subscribe(ctx context.Context) <-chan domain.EnhancementPayload
}

type Registry interface {
	domain.ToolCaller
	Configs() map[string]domain.ToolConfig
	ListAvailable(sceneType string) []domain.ToolSummary
	CheckHealth(ctx context.Context) map[string]domain.ToolHealth
	Ping(ctx context.Context, name string) error
	Len() int
}

type CacheInvalidator interface {
	Invalidate(toolName string) int
}

// CatalogDecoder parses a submitted catalog document.
type CatalogDecoder interface {
	Decode(data []byte) (domain.Catalog, error)
}

// SettingsStore persists changes made through the control plane.
type SettingsStore interface {
	SaveSettings(settings domain.EngineSettings) error
	SaveTools(tools map[string]domain.ToolConfig) error
}

type Options struct {
	Engine   Engine
	Registry Registry
	Cache    CacheInvalidator
	Decoder  CatalogDecoder
	// Store is optional; without it changes only live in memory.
	Store SettingsStore
	// Logs, when set, lets /events subscribers follow the log stream.
	Logs   *telemetry.LogBroadcaster
	Logger *zap.Logger
}

type Server struct {
	engine   Engine
	registry Registry
	cache    CacheInvalidator
	decoder  CatalogDecoder
	store    SettingsStore
	logs     *telemetry.LogBroadcaster
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func New(opts Options) *Server {
	if opts.Engine == nil {
		panic("httpapi.Server requires an engine")
	}
	if opts.Registry == nil {
		panic("httpapi.Server requires a registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   opts.Engine,
		registry: opts.Registry,
		cache:    opts.Cache,
		decoder:  opts.Decoder,
		store:    opts.Store,
		logs:     opts.Logs,
		logger:   logger.Named("httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Host UIs are served from other origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed control plane.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BasePath+"/config", s.handleGetConfig)
	mux.HandleFunc("PUT "+BasePath+"/config", s.handlePutConfig)
	mux.HandleFunc("POST "+BasePath+"/config", s.handlePutConfig)
	mux.HandleFunc("GET "+BasePath+"/status", s.handleStatus)
	mux.HandleFunc("POST "+BasePath+"/settings", s.handleSettings)
	mux.HandleFunc("POST "+BasePath+"/enabled", s.handleEnabled)
	mux.HandleFunc("POST "+BasePath+"/stats/reset", s.handleResetStats)
	mux.HandleFunc("GET "+BasePath+"/tools", s.handleListTools)
	mux.HandleFunc("GET "+BasePath+"/tools/health", s.handleToolHealth)
	mux.HandleFunc("POST "+BasePath+"/tools/test", s.handleToolTest)
	mux.HandleFunc("POST "+BasePath+"/analyze", s.handleAnalyze)
	mux.HandleFunc("POST "+BasePath+"/process", s.handleProcess)
	mux.HandleFunc("POST "+BasePath+"/cache/clear", s.handleCacheClear)
	mux.HandleFunc("GET "+BasePath+"/events", s.handleEvents)
	return telemetry.RequestMiddleware(mux)
}

// ListenAndServe serves the control plane on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = domain.DefaultAdminListenAddress
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return telemetry.Serve(ctx, server, "admin", s.logger)
}
