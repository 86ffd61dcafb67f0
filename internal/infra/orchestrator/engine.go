package orchestrator

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

// SceneAnalyzer classifies a conversation context.
type SceneAnalyzer interface {
	AnalyzeScene(actx domain.AnalysisContext) domain.SceneAnalysis
}

// ToolRegistry is the registry surface the engine drives.
type ToolRegistry interface {
	domain.ToolCaller
	Register(name string, cfg domain.ToolConfig) error
	Unregister(name string) bool
	RegisterBuiltins()
	Connect(ctx context.Context, name string) ([]domain.ToolDescriptor, error)
	ConnectAll(ctx context.Context) int
	Disconnect()
	SetCaching(enabled bool)
	Configs() map[string]domain.ToolConfig
}

type Options struct {
	Analyzer SceneAnalyzer
	Registry ToolRegistry
	Source   domain.CatalogSource
	Metrics  domain.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
	// Location formats times in summaries. Nil uses time.Local.
	Location *time.Location
}

// Engine coordinates classification and tool dispatch for each generation turn.
type Engine struct {
	analyzer SceneAnalyzer
	registry ToolRegistry
	source   domain.CatalogSource
	metrics  domain.Metrics
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
	stats    statsCounter

	mu       sync.RWMutex
	state    domain.EngineState
	settings domain.EngineSettings

	subMu sync.RWMutex
	subs  map[chan domain.EnhancementPayload]struct{}
}

func NewEngine(opts Options) *Engine {
	if opts.Analyzer == nil {
		panic("orchestrator.Engine requires an analyzer")
	}
	if opts.Registry == nil {
		panic("orchestrator.Engine requires a registry")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		analyzer: opts.Analyzer,
		registry: opts.Registry,
		source:   opts.Source,
		metrics:  metrics,
		logger:   logger.Named("engine"),
		now:      now,
		location: loc,
		state:    domain.EngineUninitialized,
		settings: domain.DefaultEngineSettings(),
		subs:     make(map[chan domain.EnhancementPayload]struct{}),
	}
}

func (e *Engine) State() domain.EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Enabled reports whether turns are processed.
func (e *Engine) Enabled() bool {
	return e.State() == domain.EngineReady
}

func (e *Engine) setState(state domain.EngineState) {
	e.mu.Lock()
	previous := e.state
	e.state = state
	e.mu.Unlock()
	if previous != state {
		e.logger.Info("engine state changed",
			telemetry.EventField(telemetry.EventStateChange),
			telemetry.StateField(string(state)),
			zap.String("previous", string(previous)),
		)
	}
}

// Initialize loads the catalog, registers and connects tools, and moves the
// engine to ready. Any panic lands the engine in disabled instead.
func (e *Engine) Initialize(ctx context.Context) (err error) {
	e.mu.Lock()
	if e.state != domain.EngineUninitialized {
		state := e.state
		e.mu.Unlock()
		if state == domain.EngineInitializing {
			return domain.E(domain.CodeFailedPrecond, "orchestrator.Initialize", "initialization already in progress", domain.ErrEngineNotReady)
		}
		return nil
	}
	e.state = domain.EngineInitializing
	e.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine initialization panicked", zap.Any("panic", r), zap.Stack("stack"))
			e.setState(domain.EngineDisabled)
			err = domain.E(domain.CodeInternal, "orchestrator.Initialize", fmt.Sprintf("initialization panicked: %v", r), nil)
		}
	}()

	catalog := e.loadCatalog(ctx)
	e.reconcile(catalog)
	connected := e.registry.ConnectAll(ctx)
	e.setState(domain.EngineReady)
	e.logger.Info("engine initialized", zap.Int("tools", len(catalog.Tools)), zap.Int("connected", connected))
	return nil
}

func (e *Engine) loadCatalog(ctx context.Context) domain.Catalog {
	if e.source == nil {
		return domain.DefaultCatalog()
	}
	catalog, err := e.source.Load(ctx)
	if err != nil {
		e.logger.Warn("catalog unavailable, using defaults", zap.Error(err))
		return domain.DefaultCatalog()
	}
	if len(catalog.Tools) == 0 {
		defaults := domain.DefaultCatalog()
		catalog.Tools = defaults.Tools
	}
	return catalog
}

// ApplyCatalog reconciles the registry with catalog and adopts its settings.
// Changed or added remote tools are connected concurrently; the number of
// successful connections is returned.
func (e *Engine) ApplyCatalog(ctx context.Context, catalog domain.Catalog) int {
	changed := e.reconcile(catalog)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		connected int
	)
	for _, name := range changed {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := e.registry.Connect(ctx, name); err == nil {
				mu.Lock()
				connected++
				mu.Unlock()
			}
		}(name)
	}
	wg.Wait()
	e.logger.Info("catalog applied",
		telemetry.EventField(telemetry.EventCatalogReload),
		zap.Int("tools", len(catalog.Tools)),
		zap.Int("changed", len(changed)),
		zap.Int("connected", connected),
	)
	return connected
}

// reconcile registers added or changed tools, drops removed remote tools and
// returns the enabled remote tools that need a connection.
func (e *Engine) reconcile(catalog domain.Catalog) []string {
	e.setSettings(catalog.Settings.Normalize())

	current := e.registry.Configs()
	for name, cfg := range current {
		if _, keep := catalog.Tools[name]; !keep && !cfg.IsBuiltin() {
			e.registry.Unregister(name)
		}
	}

	var changed []string
	for _, name := range catalog.ToolNames() {
		cfg := catalog.Tools[name]
		if old, ok := current[name]; ok && reflect.DeepEqual(old, cfg) {
			continue
		}
		if err := e.registry.Register(name, cfg); err != nil {
			e.logger.Warn("tool config rejected", telemetry.ToolField(name), zap.Error(err))
			continue
		}
		if cfg.Enabled && !cfg.IsBuiltin() {
			changed = append(changed, name)
		}
	}
	e.registry.RegisterBuiltins()
	return changed
}

// SetEnabled toggles between ready and disabled.
func (e *Engine) SetEnabled(enabled bool) error {
	e.mu.Lock()
	state := e.state
	switch {
	case enabled && state == domain.EngineDisabled:
		e.state = domain.EngineReady
	case !enabled && state == domain.EngineReady:
		e.state = domain.EngineDisabled
	case enabled && state == domain.EngineReady, !enabled && state == domain.EngineDisabled:
	default:
		e.mu.Unlock()
		return domain.E(domain.CodeFailedPrecond, "orchestrator.SetEnabled", "engine is "+string(state), domain.ErrEngineNotReady)
	}
	next := e.state
	e.mu.Unlock()
	if next != state {
		e.logger.Info("engine state changed",
			telemetry.EventField(telemetry.EventStateChange),
			telemetry.StateField(string(next)),
			zap.String("previous", string(state)),
		)
	}
	return nil
}

// Cleanup disconnects every tool and returns the engine to uninitialized.
func (e *Engine) Cleanup() {
	e.registry.Disconnect()
	e.setState(domain.EngineUninitialized)
}

func (e *Engine) Settings() domain.EngineSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

func (e *Engine) setSettings(settings domain.EngineSettings) {
	e.mu.Lock()
	e.settings = settings
	e.mu.Unlock()
	e.registry.SetCaching(settings.EnableCaching)
}

// UpdateSettings applies a partial update and returns the resulting settings.
func (e *Engine) UpdateSettings(patch domain.SettingsPatch) domain.EngineSettings {
	e.mu.Lock()
	e.settings = patch.Apply(e.settings)
	settings := e.settings
	e.mu.Unlock()
	e.registry.SetCaching(settings.EnableCaching)
	return settings
}

func (e *Engine) Stats() domain.Stats {
	return e.stats.snapshot()
}

func (e *Engine) ResetStats() {
	e.stats.reset()
}

// Analyze runs the classifier without dispatching.
func (e *Engine) Analyze(actx domain.AnalysisContext) domain.SceneAnalysis {
	return e.analyzer.AnalyzeScene(actx)
}

// ProcessTurn is the per-generation hook. It never fails: skipped turns,
// low-confidence turns and internal faults all yield nil.
func (e *Engine) ProcessTurn(ctx context.Context, turn domain.Turn) (payload *domain.EnhancementPayload) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("turn processing panicked", zap.Any("panic", r), zap.Stack("stack"))
			payload = nil
		}
	}()

	settings := e.Settings()
	if !e.Enabled() || !settings.AutoTrigger || turn.DryRun || skipGeneration(turn.Type) {
		e.metrics.ObserveRound(domain.RoundMetric{Outcome: domain.RoundSkipped})
		return nil
	}

	e.stats.generation()
	analysis := e.Analyze(turn.Context)
	for _, scene := range analysis.DetectedScenes {
		e.metrics.ObserveSceneDetected(scene.Type)
	}
	if settings.DebugMode {
		telemetry.LoggerWithRequest(ctx, e.logger).Info("scene analysis", zap.Any("analysis", analysis))
	}
	if analysis.Confidence < settings.ConfidenceThreshold {
		e.metrics.ObserveRound(domain.RoundMetric{Outcome: domain.RoundEmpty})
		return nil
	}
	return e.Dispatch(ctx, analysis, turn.Context, settings.Budget())
}

func skipGeneration(kind domain.GenerationType) bool {
	return kind == domain.GenerationQuiet || kind == domain.GenerationImpersonate
}

// Subscribe streams every produced payload until ctx is done. Slow
// subscribers miss payloads.
func (e *Engine) Subscribe(ctx context.Context) <-chan domain.EnhancementPayload {
	ch := make(chan domain.EnhancementPayload, 16)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	go func() {
		<-ctx.Done()
		e.subMu.Lock()
		delete(e.subs, ch)
		close(ch)
		e.subMu.Unlock()
	}()
	return ch
}

func (e *Engine) publish(payload *domain.EnhancementPayload) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for ch := range e.subs {
		select {
		case ch <- *payload:
		default:
		}
	}
}
