package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog()

	assert.Equal(t, []string{"conversation-memory", "rag-search", "weather-api", "web-search"}, catalog.ToolNames())
	for name, cfg := range catalog.Tools {
		assert.False(t, cfg.Enabled, name)
		assert.False(t, cfg.IsBuiltin(), name)
		assert.Equal(t, DefaultToolMaxRetries, cfg.MaxRetries, name)
	}
	assert.Equal(t, 8*time.Second, catalog.Tools["web-search"].Timeout)
	assert.Equal(t, []string{"search", "memory"}, catalog.Tools["rag-search"].SceneTypes)
	assert.Equal(t, DefaultEngineSettings(), catalog.Settings)
}

func TestCatalog_CloneIsDeep(t *testing.T) {
	original := Catalog{Tools: map[string]ToolConfig{
		"weather-api": {SceneTypes: []string{"weather"}, Headers: map[string]string{"a": "1"}},
	}}
	clone := original.Clone()
	clone.Tools["weather-api"].SceneTypes[0] = "time"
	clone.Tools["weather-api"].Headers["a"] = "2"
	delete(clone.Tools, "weather-api")

	require.Contains(t, original.Tools, "weather-api")
	assert.Equal(t, "weather", original.Tools["weather-api"].SceneTypes[0])
	assert.Equal(t, "1", original.Tools["weather-api"].Headers["a"])
}

func TestEngineSettings_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   EngineSettings
		want EngineSettings
	}{
		{
			name: "zero values get defaults",
			in:   EngineSettings{},
			want: EngineSettings{
				MaxToolsPerGeneration: DefaultMaxToolsPerGeneration,
				Timeout:               DefaultOrchestrationTimeout,
			},
		},
		{
			name: "tool count is capped",
			in:   EngineSettings{MaxToolsPerGeneration: 9, Timeout: time.Second, ConfidenceThreshold: 0.5},
			want: EngineSettings{MaxToolsPerGeneration: MaxRecommendedTools, Timeout: time.Second, ConfidenceThreshold: 0.5},
		},
		{
			name: "threshold out of range",
			in:   EngineSettings{MaxToolsPerGeneration: 1, Timeout: time.Second, ConfidenceThreshold: 1.5},
			want: EngineSettings{MaxToolsPerGeneration: 1, Timeout: time.Second, ConfidenceThreshold: DefaultConfidenceThreshold},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestSettingsPatch_Apply(t *testing.T) {
	base := DefaultEngineSettings()

	assert.Equal(t, base, SettingsPatch{}.Apply(base))

	debug := true
	tools := 0
	timeout := 2 * time.Second
	threshold := 0.7
	got := SettingsPatch{
		DebugMode:             &debug,
		MaxToolsPerGeneration: &tools,
		Timeout:               &timeout,
		ConfidenceThreshold:   &threshold,
	}.Apply(base)

	assert.True(t, got.DebugMode)
	assert.Equal(t, DefaultMaxToolsPerGeneration, got.MaxToolsPerGeneration)
	assert.Equal(t, 2*time.Second, got.Timeout)
	assert.InDelta(t, 0.7, got.ConfidenceThreshold, 1e-9)
	assert.Equal(t, base.AutoTrigger, got.AutoTrigger)
	assert.Equal(t, Budget{MaxTools: DefaultMaxToolsPerGeneration, Timeout: 2 * time.Second}, got.Budget())
}
