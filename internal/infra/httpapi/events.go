package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
	eventReadLimit  = 4096
)

// EventType tags messages on the event stream.
type EventType string

const (
	EventPayload EventType = "payload"
	EventLog     EventType = "log"
)

type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// handleEvents upgrades to a websocket and streams enhancement payloads.
// With ?logs=1 log entries are interleaved. Inbound frames are discarded.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Debug("event stream upgrade failed", zap.Error(err))
		return
	}
	logger := telemetry.LoggerWithRequest(r.Context(), s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	payloads := s.engine.Subscribe(ctx)
	var logs <-chan telemetry.LogEntry
	if s.logs != nil && r.URL.Query().Get("logs") == "1" {
		logs = s.logs.Subscribe(ctx)
	}

	go s.readEvents(conn, cancel)
	logger.Debug("event stream opened")
	s.writeEvents(ctx, conn, payloads, logs)
	logger.Debug("event stream closed")
}

func (s *Server) readEvents(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(eventReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(eventPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeEvents(ctx context.Context, conn *websocket.Conn, payloads <-chan domain.EnhancementPayload, logs <-chan telemetry.LogEntry) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		var event Event
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(eventWriteWait))
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			event = Event{Type: EventPayload, Data: payload}
		case entry, ok := <-logs:
			if !ok {
				logs = nil
				continue
			}
			event = Event{Type: EventLog, Data: entry}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}
}
