package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

type errorBody struct {
	Error string           `json:"error"`
	Code  domain.ErrorCode `json:"code"`
}

func codeFromError(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return domain.CodeCanceled
	}
	if code, ok := domain.CodeFrom(err); ok {
		return code
	}
	return domain.CodeInternal
}

func httpStatusFromCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeFailedPrecond:
		return http.StatusConflict
	case domain.CodeUnavailable, domain.CodeCanceled:
		return http.StatusServiceUnavailable
	case domain.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	code := codeFromError(err)
	status := httpStatusFromCode(code)
	logger := telemetry.LoggerWithRequest(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logger.Warn("admin request failed", zap.String("op", op), zap.Error(err))
	} else {
		logger.Debug("admin request rejected", zap.String("op", op), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

// decodeBody treats an empty body as an empty object.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.E(domain.CodeInvalidArgument, "httpapi.decode", "invalid JSON body: "+err.Error(), domain.ErrInvalidRequest)
	}
	return nil
}
