package telemetry

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-Id"

type requestContextKey struct{}

// RequestMeta correlates logs for one admin request or orchestration round.
type RequestMeta struct {
	RequestID string
	RoundID   string
	TraceID   string
	SpanID    string
}

func (m RequestMeta) IsZero() bool {
	return m.RequestID == "" && m.RoundID == "" && m.TraceID == "" && m.SpanID == ""
}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	if meta.IsZero() {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestContextKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(requestContextKey{}).(RequestMeta)
	return meta, ok && !meta.IsZero()
}

func NewID() string {
	return uuid.NewString()
}

func TraceSpanFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return "", ""
	}
	return spanCtx.TraceID().String(), spanCtx.SpanID().String()
}

// EnsureRequestMeta makes sure ctx carries a request ID, generating one if needed.
func EnsureRequestMeta(ctx context.Context, requestID string) (context.Context, RequestMeta) {
	existing, _ := RequestMetaFromContext(ctx)
	if requestID == "" {
		requestID = existing.RequestID
	}
	if requestID == "" {
		requestID = NewID()
	}
	meta := existing
	meta.RequestID = requestID
	meta.TraceID, meta.SpanID = TraceSpanFromContext(ctx)
	return WithRequestMeta(ctx, meta), meta
}

// WithRoundID starts an orchestration round in ctx and returns its ID.
func WithRoundID(ctx context.Context) (context.Context, string) {
	meta, _ := RequestMetaFromContext(ctx)
	meta.RoundID = NewID()
	meta.TraceID, meta.SpanID = TraceSpanFromContext(ctx)
	return WithRequestMeta(ctx, meta), meta.RoundID
}

func RequestFields(meta RequestMeta) []zap.Field {
	fields := make([]zap.Field, 0, 4)
	if meta.RequestID != "" {
		fields = append(fields, RequestIDField(meta.RequestID))
	}
	if meta.RoundID != "" {
		fields = append(fields, RoundIDField(meta.RoundID))
	}
	if meta.TraceID != "" {
		fields = append(fields, TraceIDField(meta.TraceID))
	}
	if meta.SpanID != "" {
		fields = append(fields, SpanIDField(meta.SpanID))
	}
	return fields
}

func LoggerWithRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	meta, ok := RequestMetaFromContext(ctx)
	if !ok {
		return logger
	}
	return logger.With(RequestFields(meta)...)
}

// RequestMiddleware propagates or assigns X-Request-Id for each HTTP request.
func RequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		incoming := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		ctx, meta := EnsureRequestMeta(r.Context(), incoming)
		w.Header().Set(RequestIDHeader, meta.RequestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
