package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/catalog"
	"mcpscene/internal/infra/hashutil"
	"mcpscene/internal/infra/orchestrator"
	"mcpscene/internal/infra/telemetry"
)

type statusResponse struct {
	State     domain.EngineState       `json:"state"`
	Enabled   bool                     `json:"enabled"`
	ToolCount int                      `json:"toolCount"`
	Stats     domain.Stats             `json:"stats"`
	Settings  catalog.SettingsDocument `json:"settings"`
}

type configResponse struct {
	catalog.Document
	Connected *int `json:"connected,omitempty"`
}

type toolTestRequest struct {
	ToolName string `json:"toolName"`
	Function string `json:"function"`
	// FunctionName is accepted as an alias of Function.
	FunctionName string         `json:"functionName"`
	Args         map[string]any `json:"args"`
}

type toolTestResponse struct {
	Success         bool   `json:"success"`
	Result          any    `json:"result,omitempty"`
	Cached          bool   `json:"cached,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"executionTime"`
}

type analyzeRequest struct {
	Text    string                 `json:"text"`
	Context domain.AnalysisContext `json:"context"`
}

type processResponse struct {
	Payload *domain.EnhancementPayload `json:"payload"`
	Context string                     `json:"context"`
}

func (s *Server) currentCatalog() domain.Catalog {
	return domain.Catalog{Settings: s.engine.Settings(), Tools: s.registry.Configs()}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	doc := catalog.Encode(s.currentCatalog())
	if etag := hashutil.ETag(s.logger, "config", doc); etag != "" {
		w.Header().Set("ETag", `"`+etag+`"`)
	}
	writeJSON(w, http.StatusOK, configResponse{Document: doc})
}

// handlePutConfig replaces the settings and, when the document carries a
// tools section, the tool set.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.PutConfig"
	if s.decoder == nil {
		s.writeError(w, r, op, domain.E(domain.CodeFailedPrecond, op, "config updates are not enabled", nil))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, op, domain.E(domain.CodeInvalidArgument, op, "read body: "+err.Error(), domain.ErrInvalidRequest))
		return
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		s.writeError(w, r, op, domain.E(domain.CodeInvalidArgument, op, "config must be a JSON object", domain.ErrInvalidRequest))
		return
	}
	next, err := s.decoder.Decode(data)
	if err != nil {
		s.writeError(w, r, op, err)
		return
	}
	_, hasTools := sections["tools"]
	if !hasTools {
		next.Tools = s.registry.Configs()
	}

	if raw, ok := sections["enabled"]; ok {
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err == nil {
			if err := s.engine.SetEnabled(enabled); err != nil {
				s.writeError(w, r, op, err)
				return
			}
		}
	}

	connected := s.engine.ApplyCatalog(r.Context(), next)
	if err := s.persist(next.Settings, next.Tools, hasTools); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	telemetry.LoggerWithRequest(r.Context(), s.logger).Info("config replaced",
		telemetry.EventField(telemetry.EventCatalogReload),
		zap.Int("tools", len(next.Tools)),
		zap.Int("connected", connected),
	)
	writeJSON(w, http.StatusOK, configResponse{
		Document:  catalog.Encode(s.currentCatalog()),
		Connected: &connected,
	})
}

func (s *Server) persist(settings domain.EngineSettings, tools map[string]domain.ToolConfig, withTools bool) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.SaveSettings(settings); err != nil {
		return err
	}
	if !withTools {
		return nil
	}
	return s.store.SaveTools(tools)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		State:     s.engine.State(),
		Enabled:   s.engine.Enabled(),
		ToolCount: s.registry.Len(),
		Stats:     s.engine.Stats(),
		Settings:  catalog.EncodeSettings(s.engine.Settings()),
	})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.UpdateSettings"
	var body struct {
		domain.SettingsPatch
		TimeoutMs *int64 `json:"timeoutMs,omitempty"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	patch := body.SettingsPatch
	if body.TimeoutMs != nil {
		timeout := time.Duration(*body.TimeoutMs) * time.Millisecond
		patch.Timeout = &timeout
	}
	settings := s.engine.UpdateSettings(patch)
	if err := s.persist(settings, nil, false); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, catalog.EncodeSettings(settings))
}

func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.SetEnabled"
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	if body.Enabled == nil {
		s.writeError(w, r, op, domain.E(domain.CodeInvalidArgument, op, "enabled is required", domain.ErrInvalidRequest))
		return
	}
	if err := s.engine.SetEnabled(*body.Enabled); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled": s.engine.Enabled(),
		"state":   s.engine.State(),
	})
}

func (s *Server) handleResetStats(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetStats()
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools := s.registry.ListAvailable(r.URL.Query().Get("scene"))
	if tools == nil {
		tools = []domain.ToolSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": tools})
}

func (s *Server) handleToolHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.CheckHealth(r.Context()))
}

// handleToolTest probes one tool. An empty function or "ping" runs a
// liveness probe; anything else is a real call through the result cache.
func (s *Server) handleToolTest(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.TestTool"
	var req toolTestRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	req.ToolName = strings.TrimSpace(req.ToolName)
	if req.Function == "" {
		req.Function = req.FunctionName
	}
	if req.ToolName == "" {
		s.writeError(w, r, op, domain.E(domain.CodeInvalidArgument, op, "toolName is required", domain.ErrInvalidRequest))
		return
	}
	if _, ok := s.registry.Configs()[req.ToolName]; !ok {
		s.writeError(w, r, op, domain.E(domain.CodeNotFound, op, "unknown tool "+req.ToolName, domain.ErrToolNotFound))
		return
	}

	started := time.Now()
	var (
		resp toolTestResponse
		err  error
	)
	switch req.Function {
	case "", "ping":
		err = s.registry.Ping(r.Context(), req.ToolName)
		resp.Result = "pong"
	default:
		args := req.Args
		if args == nil {
			args = map[string]any{}
		}
		var result domain.CallResult
		result, err = s.registry.CallTool(r.Context(), req.ToolName, req.Function, args)
		resp.Result = result.Value
		resp.Cached = result.Cached
	}
	resp.ExecutionTimeMs = time.Since(started).Milliseconds()
	if err != nil {
		resp.Result = nil
		resp.Error = err.Error()
	} else {
		resp.Success = true
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.Analyze"
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	actx := req.Context
	if actx.UserInput == "" {
		actx.UserInput = req.Text
	}
	if actx.UserInput == "" && len(actx.ChatHistory) == 0 && actx.Character == nil {
		s.writeError(w, r, op, domain.E(domain.CodeInvalidArgument, op, "text or context is required", domain.ErrInvalidRequest))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Analyze(actx))
}

// handleProcess runs one generation turn and returns the payload with its
// rendered prompt block. A skipped turn yields a null payload.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.Process"
	var turn domain.Turn
	if err := decodeBody(r, &turn); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	payload := s.engine.ProcessTurn(r.Context(), turn)
	writeJSON(w, http.StatusOK, processResponse{
		Payload: payload,
		Context: orchestrator.RenderContext(payload),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	const op = "httpapi.ClearCache"
	if s.cache == nil {
		s.writeError(w, r, op, domain.E(domain.CodeFailedPrecond, op, "result cache is not configured", nil))
		return
	}
	var body struct {
		ToolName string `json:"toolName"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, r, op, err)
		return
	}
	removed := s.cache.Invalidate(strings.TrimSpace(body.ToolName))
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
