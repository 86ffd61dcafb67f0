package domain

import "time"

// CallStatus labels the outcome of a tool call.
type CallStatus string

const (
	// CallStatusSuccess indicates the backend returned a result.
	CallStatusSuccess CallStatus = "success"
	// CallStatusError indicates the call failed after retries.
	CallStatusError CallStatus = "error"
	// CallStatusAbandoned indicates the round deadline fired first.
	CallStatusAbandoned CallStatus = "abandoned"
)

// RoundOutcome labels how an orchestration round ended.
type RoundOutcome string

const (
	RoundEnhanced RoundOutcome = "enhanced"
	RoundEmpty    RoundOutcome = "empty"
	RoundPartial  RoundOutcome = "partial"
	RoundSkipped  RoundOutcome = "skipped"
)

// ToolCallMetric captures one tool call.
type ToolCallMetric struct {
	Tool     string
	Function string
	Status   CallStatus
	Cached   bool
	Duration time.Duration
}

// RoundMetric captures one orchestration round.
type RoundMetric struct {
	Outcome   RoundOutcome
	Scheduled int
	Succeeded int
	Duration  time.Duration
}

// Metrics records engine observability signals.
type Metrics interface {
	ObserveSceneDetected(scene SceneType)
	ObserveToolCall(metric ToolCallMetric)
	ObserveCacheLookup(tool string, hit bool)
	ObserveRound(metric RoundMetric)
	SetToolHealth(tool string, status HealthStatus)
	ObserveRetry(tool string, op string)
}
