package domain

import (
	"context"
	"sort"
	"time"
)

// EngineSettings tunes per-turn orchestration.
type EngineSettings struct {
	AutoTrigger           bool
	MaxToolsPerGeneration int
	Timeout               time.Duration
	ConfidenceThreshold   float64
	EnableCaching         bool
	DebugMode             bool
}

// DefaultEngineSettings returns the settings used when nothing is configured.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		AutoTrigger:           DefaultAutoTrigger,
		MaxToolsPerGeneration: DefaultMaxToolsPerGeneration,
		Timeout:               DefaultOrchestrationTimeout,
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		EnableCaching:         DefaultEnableCaching,
		DebugMode:             DefaultDebugMode,
	}
}

// Budget returns the per-round limits derived from the settings.
func (s EngineSettings) Budget() Budget {
	return Budget{MaxTools: s.MaxToolsPerGeneration, Timeout: s.Timeout}
}

// Catalog is the full configuration set: engine settings plus tool configs keyed by name.
type Catalog struct {
	Settings EngineSettings
	Tools    map[string]ToolConfig
}

// ToolNames returns tool names in lexical order.
func (c Catalog) ToolNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy.
func (c Catalog) Clone() Catalog {
	out := Catalog{Settings: c.Settings, Tools: make(map[string]ToolConfig, len(c.Tools))}
	for name, cfg := range c.Tools {
		out.Tools[name] = cfg.Clone()
	}
	return out
}

// CatalogSource supplies the configuration set at startup and on reload.
type CatalogSource interface {
	Load(ctx context.Context) (Catalog, error)
}

// DefaultCatalog is the fallback set used when no source is loadable.
func DefaultCatalog() Catalog {
	remote := func(url string, timeout, cache time.Duration, priority float64, scenes []string, desc string) ToolConfig {
		return ToolConfig{
			Enabled:      false,
			ServerURL:    url,
			Timeout:      timeout,
			MaxRetries:   DefaultToolMaxRetries,
			CacheTimeout: cache,
			Priority:     priority,
			SceneTypes:   scenes,
			Description:  desc,
		}
	}
	return Catalog{
		Settings: DefaultEngineSettings(),
		Tools: map[string]ToolConfig{
			"weather-api": remote("http://localhost:3001/mcp", DefaultToolTimeout, DefaultToolCacheTimeout, 1,
				[]string{string(SceneWeather)}, "获取实时天气信息"),
			"web-search": remote("http://localhost:3002/mcp", 8*time.Second, 10*time.Minute, 0.9,
				[]string{string(SceneSearch)}, "搜索网络信息"),
			"conversation-memory": remote("http://localhost:3003/mcp", DefaultToolTimeout, DefaultToolCacheTimeout, 1,
				[]string{string(SceneMemory)}, "检索对话记忆"),
			"rag-search": remote("http://localhost:3004/mcp", DefaultToolTimeout, DefaultToolCacheTimeout, 0.8,
				[]string{string(SceneSearch), string(SceneMemory)}, "检索相关文档"),
		},
	}
}

// Normalize replaces out-of-range values with defaults.
func (s EngineSettings) Normalize() EngineSettings {
	if s.MaxToolsPerGeneration <= 0 {
		s.MaxToolsPerGeneration = DefaultMaxToolsPerGeneration
	}
	if s.MaxToolsPerGeneration > MaxRecommendedTools {
		s.MaxToolsPerGeneration = MaxRecommendedTools
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultOrchestrationTimeout
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		s.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	return s
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	AutoTrigger           *bool          `json:"autoTrigger,omitempty"`
	MaxToolsPerGeneration *int           `json:"maxToolsPerGeneration,omitempty"`
	Timeout               *time.Duration `json:"-"`
	ConfidenceThreshold   *float64       `json:"confidenceThreshold,omitempty"`
	EnableCaching         *bool          `json:"enableCaching,omitempty"`
	DebugMode             *bool          `json:"debugMode,omitempty"`
}

func (p SettingsPatch) Apply(s EngineSettings) EngineSettings {
	if p.AutoTrigger != nil {
		s.AutoTrigger = *p.AutoTrigger
	}
	if p.MaxToolsPerGeneration != nil {
		s.MaxToolsPerGeneration = *p.MaxToolsPerGeneration
	}
	if p.Timeout != nil {
		s.Timeout = *p.Timeout
	}
	if p.ConfidenceThreshold != nil {
		s.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.EnableCaching != nil {
		s.EnableCaching = *p.EnableCaching
	}
	if p.DebugMode != nil {
		s.DebugMode = *p.DebugMode
	}
	return s.Normalize()
}
