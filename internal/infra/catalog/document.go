package catalog

import (
	"time"

	"mcpscene/internal/domain"
)

// SettingsDocument is the wire form of engine settings. Durations are
// milliseconds.
type SettingsDocument struct {
	AutoTrigger           bool    `json:"autoTrigger"`
	MaxToolsPerGeneration int     `json:"maxToolsPerGeneration"`
	TimeoutMs             int64   `json:"timeoutMs"`
	ConfidenceThreshold   float64 `json:"confidenceThreshold"`
	EnableCaching         bool    `json:"enableCaching"`
	DebugMode             bool    `json:"debugMode"`
}

// ToolDocument is the wire form of one tool config.
type ToolDocument struct {
	Enabled      bool              `json:"enabled"`
	ServerURL    string            `json:"serverUrl"`
	Timeout      int64             `json:"timeout"`
	MaxRetries   int               `json:"maxRetries"`
	CacheTimeout int64             `json:"cacheTimeout"`
	Priority     float64           `json:"priority"`
	SceneTypes   []string          `json:"sceneTypes"`
	Description  string            `json:"description,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Document is the wire form of a whole catalog: settings at the top level and
// tools keyed by name.
type Document struct {
	SettingsDocument
	Tools map[string]ToolDocument `json:"tools"`
}

func EncodeSettings(s domain.EngineSettings) SettingsDocument {
	return SettingsDocument{
		AutoTrigger:           s.AutoTrigger,
		MaxToolsPerGeneration: s.MaxToolsPerGeneration,
		TimeoutMs:             s.Timeout.Milliseconds(),
		ConfidenceThreshold:   s.ConfidenceThreshold,
		EnableCaching:         s.EnableCaching,
		DebugMode:             s.DebugMode,
	}
}

func EncodeTool(cfg domain.ToolConfig) ToolDocument {
	scenes := cfg.SceneTypes
	if scenes == nil {
		scenes = []string{}
	}
	return ToolDocument{
		Enabled:      cfg.Enabled,
		ServerURL:    cfg.ServerURL,
		Timeout:      cfg.Timeout.Milliseconds(),
		MaxRetries:   cfg.MaxRetries,
		CacheTimeout: cfg.CacheTimeout.Milliseconds(),
		Priority:     cfg.Priority,
		SceneTypes:   scenes,
		Description:  cfg.Description,
		Headers:      cfg.Headers,
	}
}

// Encode converts a catalog to its wire form.
func Encode(c domain.Catalog) Document {
	doc := Document{
		SettingsDocument: EncodeSettings(c.Settings),
		Tools:            make(map[string]ToolDocument, len(c.Tools)),
	}
	for name, cfg := range c.Tools {
		doc.Tools[name] = EncodeTool(cfg)
	}
	return doc
}

func (d SettingsDocument) Settings() domain.EngineSettings {
	return domain.EngineSettings{
		AutoTrigger:           d.AutoTrigger,
		MaxToolsPerGeneration: d.MaxToolsPerGeneration,
		Timeout:               time.Duration(d.TimeoutMs) * time.Millisecond,
		ConfidenceThreshold:   d.ConfidenceThreshold,
		EnableCaching:         d.EnableCaching,
		DebugMode:             d.DebugMode,
	}.Normalize()
}

func (d ToolDocument) Config() domain.ToolConfig {
	cfg := domain.ToolConfig{
		Enabled:      d.Enabled,
		ServerURL:    d.ServerURL,
		Timeout:      time.Duration(d.Timeout) * time.Millisecond,
		MaxRetries:   d.MaxRetries,
		CacheTimeout: time.Duration(d.CacheTimeout) * time.Millisecond,
		Priority:     d.Priority,
		SceneTypes:   d.SceneTypes,
		Description:  d.Description,
		Headers:      d.Headers,
	}
	if cfg.SceneTypes == nil {
		cfg.SceneTypes = []string{}
	}
	return cfg
}

// Catalog converts the wire form back to a catalog.
func (d Document) Catalog() domain.Catalog {
	out := domain.Catalog{
		Settings: d.SettingsDocument.Settings(),
		Tools:    make(map[string]domain.ToolConfig, len(d.Tools)),
	}
	for name, tool := range d.Tools {
		out.Tools[name] = tool.Config()
	}
	return out
}
