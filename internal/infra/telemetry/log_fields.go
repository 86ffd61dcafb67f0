package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldTool       = "tool"
	FieldFunction   = "function"
	FieldRoundID    = "round_id"
	FieldState      = "state"
	FieldDurationMs = "duration_ms"
	FieldLogSource  = "log_source"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventConnectSuccess = "connect_success"
	EventConnectFailure = "connect_failure"
	EventPingFailure    = "ping_failure"
	EventCallFailure    = "call_failure"
	EventRoundComplete  = "round_complete"
	EventRoundTimeout   = "round_timeout"
	EventCatalogReload  = "catalog_reload"
	EventStateChange    = "state_change"
	EventHealthCheck    = "health_check"
	EventReconnect      = "reconnect"
)

const LogSourceCore = "core"

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ToolField(name string) zap.Field {
	return zap.String(FieldTool, name)
}

func FunctionField(name string) zap.Field {
	return zap.String(FieldFunction, name)
}

func RoundIDField(id string) zap.Field {
	return zap.String(FieldRoundID, id)
}

func StateField(state string) zap.Field {
	return zap.String(FieldState, state)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
