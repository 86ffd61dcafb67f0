package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpscene/internal/domain"
)

type PrometheusMetrics struct {
	scenesDetected *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec
	cacheLookups   *prometheus.CounterVec
	rounds         *prometheus.CounterVec
	roundDuration  *prometheus.HistogramVec
	roundTools     prometheus.Histogram
	toolHealth     *prometheus.GaugeVec
	retries        *prometheus.CounterVec
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		scenesDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpscene_scenes_detected_total",
				Help: "Total number of scenes detected in analyzed turns",
			},
			[]string{"scene"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpscene_tool_calls_total",
				Help: "Total number of tool calls by outcome",
			},
			[]string{"tool", "status", "cached"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpscene_tool_call_duration_seconds",
				Help:    "Duration of tool calls in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"tool", "status"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpscene_cache_lookups_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"tool", "result"},
		),
		rounds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpscene_rounds_total",
				Help: "Orchestration rounds by outcome",
			},
			[]string{"outcome"},
		),
		roundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpscene_round_duration_seconds",
				Help:    "Duration of orchestration rounds in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		roundTools: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mcpscene_round_scheduled_tools",
				Help:    "Number of tools scheduled per orchestration round",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		toolHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mcpscene_tool_healthy",
				Help: "1 when the last health probe of a tool succeeded",
			},
			[]string{"tool"},
		),
		retries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpscene_tool_retries_total",
				Help: "Retries issued by tool connections",
			},
			[]string{"tool", "op"},
		),
	}
}

func (p *PrometheusMetrics) ObserveSceneDetected(scene domain.SceneType) {
	p.scenesDetected.WithLabelValues(string(scene)).Inc()
}

func (p *PrometheusMetrics) ObserveToolCall(metric domain.ToolCallMetric) {
	status := string(metric.Status)
	p.toolCalls.WithLabelValues(metric.Tool, status, strconv.FormatBool(metric.Cached)).Inc()
	if metric.Status != domain.CallStatusAbandoned {
		p.toolDuration.WithLabelValues(metric.Tool, status).Observe(metric.Duration.Seconds())
	}
}

func (p *PrometheusMetrics) ObserveCacheLookup(tool string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.cacheLookups.WithLabelValues(tool, result).Inc()
}

func (p *PrometheusMetrics) ObserveRound(metric domain.RoundMetric) {
	outcome := string(metric.Outcome)
	p.rounds.WithLabelValues(outcome).Inc()
	if metric.Outcome == domain.RoundSkipped {
		return
	}
	p.roundDuration.WithLabelValues(outcome).Observe(metric.Duration.Seconds())
	p.roundTools.Observe(float64(metric.Scheduled))
}

func (p *PrometheusMetrics) SetToolHealth(tool string, status domain.HealthStatus) {
	value := 0.0
	if status == domain.HealthHealthy {
		value = 1
	}
	p.toolHealth.WithLabelValues(tool).Set(value)
}

func (p *PrometheusMetrics) ObserveRetry(tool string, op string) {
	p.retries.WithLabelValues(tool, op).Inc()
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
