package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEnsureRequestMetaGeneratesID(t *testing.T) {
	ctx, meta := EnsureRequestMeta(context.Background(), "")
	require.NotEmpty(t, meta.RequestID)

	got, ok := RequestMetaFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, meta.RequestID, got.RequestID)
}

func TestEnsureRequestMetaUsesProvidedID(t *testing.T) {
	ctx, meta := EnsureRequestMeta(context.Background(), "req-123")
	require.Equal(t, "req-123", meta.RequestID)

	got, ok := RequestMetaFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "req-123", got.RequestID)
}

func TestWithRoundIDKeepsRequestID(t *testing.T) {
	ctx, _ := EnsureRequestMeta(context.Background(), "req-1")
	ctx, roundID := WithRoundID(ctx)
	require.NotEmpty(t, roundID)

	meta, ok := RequestMetaFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "req-1", meta.RequestID)
	require.Equal(t, roundID, meta.RoundID)
}

func TestTraceSpanFromContext(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("0123456789abcdef")
	require.NoError(t, err)
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	gotTraceID, gotSpanID := TraceSpanFromContext(ctx)
	require.Equal(t, traceID.String(), gotTraceID)
	require.Equal(t, spanID.String(), gotSpanID)
}

func TestRequestFields(t *testing.T) {
	fields := RequestFields(RequestMeta{
		RequestID: "req-1",
		RoundID:   "round-1",
		TraceID:   "trace-1",
		SpanID:    "span-1",
	})
	require.Len(t, fields, 4)
	require.Equal(t, FieldRequestID, fields[0].Key)
	require.Equal(t, FieldRoundID, fields[1].Key)
	require.Equal(t, FieldTraceID, fields[2].Key)
	require.Equal(t, FieldSpanID, fields[3].Key)
}

func TestLoggerWithRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithRequestMeta(context.Background(), RequestMeta{RequestID: "req-9"})

	LoggerWithRequest(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "req-9", entries[0].ContextMap()[FieldRequestID])
}

func TestRequestMiddleware(t *testing.T) {
	var seen string
	handler := RequestMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, _ := RequestMetaFromContext(r.Context())
		seen = meta.RequestID
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "incoming-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "incoming-id", seen)
	require.Equal(t, "incoming-id", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	require.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}
