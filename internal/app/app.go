package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/scene"
	"mcpscene/internal/infra/telemetry"
)

// App is the command surface behind the CLI.
type App struct {
	logger         *zap.Logger
	logBroadcaster *telemetry.LogBroadcaster
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

// Serve runs the engine and its servers until ctx is done.
func (a *App) Serve(ctx context.Context, cfg ServeConfig) error {
	application, cleanup, err := InitializeApplication(cfg, LoggingConfig{
		Logger:      a.logger,
		Broadcaster: a.logBroadcaster,
	})
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer cleanup()
	return application.Run(ctx)
}

// Analyze classifies text offline, without contacting any tool.
func (a *App) Analyze(actx domain.AnalysisContext) domain.SceneAnalysis {
	classifier := scene.NewClassifier(scene.ClassifierOptions{Logger: a.logger})
	return classifier.AnalyzeScene(actx)
}
