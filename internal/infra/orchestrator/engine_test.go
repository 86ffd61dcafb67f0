package orchestrator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/scene"
)

type callFunc func(ctx context.Context, fn string, args map[string]any) (domain.CallResult, error)

type fakeRegistry struct {
	mu         sync.Mutex
	configs    map[string]domain.ToolConfig
	handlers   map[string]callFunc
	calls      map[string][]map[string]any
	connected  []string
	caching    bool
	builtins   bool
	disconnect int
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		configs:  make(map[string]domain.ToolConfig),
		handlers: make(map[string]callFunc),
		calls:    make(map[string][]map[string]any),
	}
}

func (f *fakeRegistry) handle(tool string, fn callFunc) {
	f.mu.Lock()
	f.handlers[tool] = fn
	f.mu.Unlock()
}

func (f *fakeRegistry) CallTool(ctx context.Context, tool, fn string, args map[string]any) (domain.CallResult, error) {
	f.mu.Lock()
	handler := f.handlers[tool]
	f.calls[tool] = append(f.calls[tool], args)
	f.mu.Unlock()
	if handler == nil {
		return domain.CallResult{}, domain.ErrToolNotFound
	}
	return handler(ctx, fn, args)
}

func (f *fakeRegistry) Register(name string, cfg domain.ToolConfig) error {
	if cfg.IsBuiltin() && name != "datetime-service" {
		return domain.ErrInvalidConfig
	}
	f.mu.Lock()
	f.configs[name] = cfg
	f.mu.Unlock()
	return nil
}

func (f *fakeRegistry) Unregister(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.configs[name]
	delete(f.configs, name)
	return ok
}

func (f *fakeRegistry) RegisterBuiltins() {
	f.mu.Lock()
	f.builtins = true
	if _, ok := f.configs["datetime-service"]; !ok {
		f.configs["datetime-service"] = domain.ToolConfig{Enabled: true, ServerURL: domain.BuiltinServerURL}
	}
	f.mu.Unlock()
}

func (f *fakeRegistry) Connect(_ context.Context, name string) ([]domain.ToolDescriptor, error) {
	f.mu.Lock()
	f.connected = append(f.connected, name)
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeRegistry) ConnectAll(ctx context.Context) int {
	n := 0
	for name, cfg := range f.Configs() {
		if cfg.Enabled && !cfg.IsBuiltin() {
			_, _ = f.Connect(ctx, name)
			n++
		}
	}
	return n
}

func (f *fakeRegistry) Disconnect() {
	f.mu.Lock()
	f.disconnect++
	f.configs = make(map[string]domain.ToolConfig)
	f.mu.Unlock()
}

func (f *fakeRegistry) SetCaching(enabled bool) {
	f.mu.Lock()
	f.caching = enabled
	f.mu.Unlock()
}

func (f *fakeRegistry) Configs() map[string]domain.ToolConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.ToolConfig, len(f.configs))
	for k, v := range f.configs {
		out[k] = v
	}
	return out
}

func (f *fakeRegistry) connectedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.connected...)
	sort.Strings(out)
	return out
}

type sourceFunc func(ctx context.Context) (domain.Catalog, error)

func (f sourceFunc) Load(ctx context.Context) (domain.Catalog, error) { return f(ctx) }

func newTestEngine(t *testing.T, reg *fakeRegistry, source domain.CatalogSource) *Engine {
	t.Helper()
	return NewEngine(Options{
		Analyzer: scene.NewClassifier(scene.ClassifierOptions{}),
		Registry: reg,
		Source:   source,
		Logger:   zap.NewNop(),
		Location: time.UTC,
	})
}

func readyEngine(t *testing.T, reg *fakeRegistry) *Engine {
	t.Helper()
	engine := newTestEngine(t, reg, nil)
	require.NoError(t, engine.Initialize(context.Background()))
	require.Equal(t, domain.EngineReady, engine.State())
	return engine
}

func TestEngine_InitializeFallsBackToDefaults(t *testing.T) {
	reg := newFakeRegistry()
	engine := newTestEngine(t, reg, sourceFunc(func(context.Context) (domain.Catalog, error) {
		return domain.Catalog{}, errors.New("config file missing")
	}))

	require.NoError(t, engine.Initialize(context.Background()))

	assert.Equal(t, domain.EngineReady, engine.State())
	configs := reg.Configs()
	assert.Contains(t, configs, "weather-api")
	assert.Contains(t, configs, "rag-search")
	assert.Contains(t, configs, "datetime-service")
	assert.Empty(t, reg.connectedNames(), "default tools are disabled")
	assert.Equal(t, domain.DefaultEngineSettings(), engine.Settings())
	assert.True(t, reg.caching)
}

func TestEngine_InitializePanicLandsDisabled(t *testing.T) {
	reg := newFakeRegistry()
	engine := newTestEngine(t, reg, sourceFunc(func(context.Context) (domain.Catalog, error) {
		panic("boom")
	}))

	err := engine.Initialize(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.EngineDisabled, engine.State())
	assert.Nil(t, engine.ProcessTurn(context.Background(), domain.Turn{Context: domain.AnalysisContext{UserInput: "今天天气怎么样"}}))
}

func TestEngine_StateMachine(t *testing.T) {
	reg := newFakeRegistry()
	engine := newTestEngine(t, reg, nil)

	assert.ErrorIs(t, engine.SetEnabled(false), domain.ErrEngineNotReady)
	require.NoError(t, engine.Initialize(context.Background()))
	require.NoError(t, engine.Initialize(context.Background()))

	require.NoError(t, engine.SetEnabled(false))
	assert.Equal(t, domain.EngineDisabled, engine.State())
	require.NoError(t, engine.SetEnabled(false))
	require.NoError(t, engine.SetEnabled(true))
	assert.Equal(t, domain.EngineReady, engine.State())

	engine.Cleanup()
	assert.Equal(t, domain.EngineUninitialized, engine.State())
	assert.Equal(t, 1, reg.disconnect)
	assert.ErrorIs(t, engine.SetEnabled(true), domain.ErrEngineNotReady)
}

func TestEngine_ApplyCatalogReconciles(t *testing.T) {
	reg := newFakeRegistry()
	engine := readyEngine(t, reg)

	remote := func(enabled bool) domain.ToolConfig {
		return domain.ToolConfig{Enabled: enabled, ServerURL: "http://localhost:3001/mcp", Priority: 1}
	}
	settings := domain.DefaultEngineSettings()
	settings.EnableCaching = false
	connected := engine.ApplyCatalog(context.Background(), domain.Catalog{
		Settings: settings,
		Tools: map[string]domain.ToolConfig{
			"weather-api": remote(true),
			"web-search":  remote(true),
			"broken":      {Enabled: true, ServerURL: domain.BuiltinServerURL},
		},
	})

	assert.Equal(t, 2, connected)
	assert.Equal(t, []string{"weather-api", "web-search"}, reg.connectedNames())
	configs := reg.Configs()
	assert.NotContains(t, configs, "rag-search")
	assert.NotContains(t, configs, "broken")
	assert.Contains(t, configs, "datetime-service")
	assert.False(t, reg.caching)

	// unchanged configs are not reconnected
	connected = engine.ApplyCatalog(context.Background(), domain.Catalog{
		Settings: settings,
		Tools: map[string]domain.ToolConfig{
			"weather-api": remote(true),
			"web-search":  remote(false),
		},
	})
	assert.Equal(t, 0, connected)
	assert.Len(t, reg.connectedNames(), 2)
}

func TestEngine_ProcessTurnSkips(t *testing.T) {
	weather := domain.AnalysisContext{UserInput: "今天天气怎么样"}
	tests := []struct {
		name  string
		turn  domain.Turn
		setup func(e *Engine)
	}{
		{name: "dry run", turn: domain.Turn{Context: weather, DryRun: true}},
		{name: "quiet", turn: domain.Turn{Context: weather, Type: domain.GenerationQuiet}},
		{name: "impersonate", turn: domain.Turn{Context: weather, Type: domain.GenerationImpersonate}},
		{name: "auto trigger off", turn: domain.Turn{Context: weather}, setup: func(e *Engine) {
			off := false
			e.UpdateSettings(domain.SettingsPatch{AutoTrigger: &off})
		}},
		{name: "disabled", turn: domain.Turn{Context: weather}, setup: func(e *Engine) {
			require.NoError(t, e.SetEnabled(false))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newFakeRegistry()
			reg.handle("weather-api", func(context.Context, string, map[string]any) (domain.CallResult, error) {
				return domain.CallResult{Value: map[string]any{}}, nil
			})
			engine := readyEngine(t, reg)
			if tt.setup != nil {
				tt.setup(engine)
			}

			assert.Nil(t, engine.ProcessTurn(context.Background(), tt.turn))
			assert.Zero(t, engine.Stats().TotalGenerations)
			assert.Empty(t, reg.calls)
		})
	}
}

func TestEngine_ProcessTurnDispatchesWeather(t *testing.T) {
	reg := newFakeRegistry()
	reg.handle("weather-api", func(_ context.Context, fn string, _ map[string]any) (domain.CallResult, error) {
		return domain.CallResult{Value: map[string]any{
			"weather": map[string]any{"description": "晴", "temperature": 21.0},
		}}, nil
	})
	engine := readyEngine(t, reg)

	payload := engine.ProcessTurn(context.Background(), domain.Turn{
		Type: domain.GenerationNormal,
		Context: domain.AnalysisContext{
			UserInput: "今天天气怎么样",
			Character: &domain.CharacterProfile{Name: "Alice", Scenario: "故事发生在杭州市的一家茶馆"},
		},
	})

	require.NotNil(t, payload)
	require.Len(t, payload.ToolResults, 1)
	assert.Equal(t, "weather-api", payload.ToolResults[0].ToolName)
	assert.Equal(t, "getCurrentWeather", payload.ToolResults[0].FunctionName)
	assert.Equal(t, "当前天气：晴，温度21°C", payload.Summary)
	assert.NotEmpty(t, payload.RoundID)

	args := reg.calls["weather-api"][0]
	assert.Equal(t, "杭州", args["location"])
	assert.Equal(t, "今天天气怎么样", args["query"])

	stats := engine.Stats()
	assert.EqualValues(t, 1, stats.TotalGenerations)
	assert.EqualValues(t, 1, stats.ToolCallsTriggered)
	assert.EqualValues(t, 1, stats.SuccessfulCalls)
}

func TestEngine_ProcessTurnBelowThreshold(t *testing.T) {
	reg := newFakeRegistry()
	engine := readyEngine(t, reg)

	assert.Nil(t, engine.ProcessTurn(context.Background(), domain.Turn{Context: domain.AnalysisContext{UserInput: "hello there"}}))
	stats := engine.Stats()
	assert.EqualValues(t, 1, stats.TotalGenerations)
	assert.Zero(t, stats.ToolCallsTriggered)
}

func TestEngine_ProcessTurnRecoversPanic(t *testing.T) {
	reg := newFakeRegistry()
	reg.handle("weather-api", func(context.Context, string, map[string]any) (domain.CallResult, error) {
		return domain.CallResult{}, nil
	})
	engine := readyEngine(t, reg)
	engine.analyzer = panicAnalyzer{}

	assert.NotPanics(t, func() {
		assert.Nil(t, engine.ProcessTurn(context.Background(), domain.Turn{Context: domain.AnalysisContext{UserInput: "x"}}))
	})
}

type panicAnalyzer struct{}

func (panicAnalyzer) AnalyzeScene(domain.AnalysisContext) domain.SceneAnalysis { panic("classifier bug") }

func TestEngine_UpdateSettingsNormalizes(t *testing.T) {
	reg := newFakeRegistry()
	engine := readyEngine(t, reg)

	maxTools := 42
	threshold := 0.6
	caching := false
	settings := engine.UpdateSettings(domain.SettingsPatch{
		MaxToolsPerGeneration: &maxTools,
		ConfidenceThreshold:   &threshold,
		EnableCaching:         &caching,
	})

	assert.Equal(t, domain.MaxRecommendedTools, settings.MaxToolsPerGeneration)
	assert.Equal(t, 0.6, settings.ConfidenceThreshold)
	assert.False(t, settings.EnableCaching)
	assert.False(t, reg.caching)
	assert.True(t, settings.AutoTrigger)
}

func TestEngine_SubscribeReceivesPayloads(t *testing.T) {
	reg := newFakeRegistry()
	reg.handle("web-search", func(context.Context, string, map[string]any) (domain.CallResult, error) {
		return domain.CallResult{Value: map[string]any{"results": []any{"a"}}}, nil
	})
	engine := readyEngine(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := engine.Subscribe(ctx)

	payload := engine.Dispatch(context.Background(), analysisFor("web-search"), domain.AnalysisContext{}, domain.Budget{MaxTools: 3, Timeout: time.Second})
	require.NotNil(t, payload)

	select {
	case got := <-events:
		assert.Equal(t, payload.RoundID, got.RoundID)
		assert.Equal(t, "搜索到1条相关信息", got.Summary)
	case <-time.After(time.Second):
		t.Fatal("no payload published")
	}
}
