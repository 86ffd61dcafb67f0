package app

import (
	"context"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/catalog"
)

// ValidateConfig loads and validates the catalog at the provided path.
func (a *App) ValidateConfig(ctx context.Context, cfg ValidateConfig) (domain.Catalog, error) {
	loader := catalog.NewLoader(a.logger)
	loaded, err := loader.Load(ctx, cfg.CatalogPath)
	if err != nil {
		return domain.Catalog{}, err
	}

	enabled := 0
	for _, tool := range loaded.Tools {
		if tool.Enabled {
			enabled++
		}
	}
	a.logger.Info("configuration validated",
		zap.String("config", cfg.CatalogPath),
		zap.Int("tools", len(loaded.Tools)),
		zap.Int("enabled", enabled),
	)
	return loaded, nil
}
