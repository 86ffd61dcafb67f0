package telemetry

import "mcpscene/internal/domain"

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveSceneDetected(_ domain.SceneType) {}

func (n *NoopMetrics) ObserveToolCall(_ domain.ToolCallMetric) {}

func (n *NoopMetrics) ObserveCacheLookup(_ string, _ bool) {}

func (n *NoopMetrics) ObserveRound(_ domain.RoundMetric) {}

func (n *NoopMetrics) SetToolHealth(_ string, _ domain.HealthStatus) {}

func (n *NoopMetrics) ObserveRetry(_ string, _ string) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
