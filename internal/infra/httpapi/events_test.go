package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

func dialEvents(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + BasePath + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestEvents_StreamsPayloads(t *testing.T) {
	engine := newFakeEngine()
	srv := httptest.NewServer(New(Options{Engine: engine, Registry: newFakeRegistry()}).Handler())
	defer srv.Close()

	conn := dialEvents(t, srv, "")
	engine.events <- domain.EnhancementPayload{RoundID: "round-1", Summary: "当前时间：12:00"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var event struct {
		Type EventType                 `json:"type"`
		Data domain.EnhancementPayload `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, EventPayload, event.Type)
	assert.Equal(t, "round-1", event.Data.RoundID)
	assert.Equal(t, "当前时间：12:00", event.Data.Summary)
}

func TestEvents_StreamsLogsWhenRequested(t *testing.T) {
	broadcaster := telemetry.NewLogBroadcaster(zapcore.InfoLevel)
	srv := httptest.NewServer(New(Options{
		Engine:   newFakeEngine(),
		Registry: newFakeRegistry(),
		Logs:     broadcaster,
	}).Handler())
	defer srv.Close()

	conn := dialEvents(t, srv, "?logs=1")
	logger := zap.New(broadcaster.Core()).Named("engine")

	var event struct {
		Type EventType          `json:"type"`
		Data telemetry.LogEntry `json:"data"`
	}
	received := make(chan error, 1)
	go func() {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		received <- conn.ReadJSON(&event)
	}()

	// The subscription is registered after the upgrade; keep logging until
	// the reader sees an entry.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-received:
			require.NoError(t, err)
			assert.Equal(t, EventLog, event.Type)
			assert.Equal(t, "tool call finished", event.Data.Message)
			assert.Equal(t, "engine", event.Data.Logger)
			return
		case <-ticker.C:
			logger.Info("tool call finished")
		}
	}
}

func TestEvents_RejectsPlainHTTP(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, "GET", "/events", "")
	assert.Equal(t, 400, rec.Code)
}
