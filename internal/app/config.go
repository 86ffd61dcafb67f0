package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment variable read by LoadServeConfig.
const EnvPrefix = "MCPSCENE"

// ServeConfig holds process-level settings. Engine and tool settings live in
// the catalog file and the settings store.
type ServeConfig struct {
	CatalogPath    string `envconfig:"CATALOG_PATH" default:"tools.yaml"`
	SettingsPath   string `envconfig:"SETTINGS_PATH" default:"data/settings.db"`
	AdminAddr      string `envconfig:"ADMIN_ADDR" default:"127.0.0.1:8790"`
	MetricsAddr    string `envconfig:"METRICS_ADDR" default:"127.0.0.1:9090"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
	HealthzEnabled bool   `envconfig:"HEALTHZ_ENABLED" default:"true"`
	HealthSchedule string `envconfig:"HEALTH_SCHEDULE" default:"@every 1m"`
	WatchCatalog   bool   `envconfig:"WATCH_CATALOG" default:"true"`
	OTLPEndpoint   string `envconfig:"OTLP_ENDPOINT"`
	OTLPInsecure   bool   `envconfig:"OTLP_INSECURE" default:"true"`
	// Timezone names the IANA zone used in summaries. Empty uses the host zone.
	Timezone string        `envconfig:"TIMEZONE"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"info"`
	Shutdown time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// ValidateConfig selects the catalog checked by App.ValidateConfig.
type ValidateConfig struct {
	CatalogPath string
}

// LoadServeConfig reads ServeConfig from MCPSCENE_* environment variables.
func LoadServeConfig() (ServeConfig, error) {
	var cfg ServeConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return ServeConfig{}, fmt.Errorf("process environment: %w", err)
	}
	return cfg, nil
}

// Location resolves Timezone.
func (c ServeConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}
