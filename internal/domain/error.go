package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeUnavailable      ErrorCode = "UNAVAILABLE"
	CodeFailedPrecond    ErrorCode = "FAILED_PRECONDITION"
	CodeInternal         ErrorCode = "INTERNAL"
	CodeCanceled         ErrorCode = "CANCELED"
	CodeDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
)

var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolDisabled      = errors.New("tool is disabled")
	ErrToolNotConnected  = errors.New("no connection available for tool")
	ErrFunctionNotFound  = errors.New("function not found")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrEngineNotReady    = errors.New("engine is not ready")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrToolCallFailed    = errors.New("tool call returned an error result")
	ErrBuiltinImmutable  = errors.New("built-in tools cannot be reconfigured")
	ErrSettingsStoreDown = errors.New("settings store is closed")
)

type Error struct {
	Code      ErrorCode
	Op        string
	Message   string
	Cause     error
	Retryable bool
	Meta      map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:      existing.Code,
			Op:        op,
			Message:   existing.Message,
			Cause:     existing.Cause,
			Retryable: existing.Retryable,
			Meta:      existing.Meta,
		}
	}
	return E(code, op, "", err)
}

// WithMeta returns the error with an extra metadata pair attached.
func (e *Error) WithMeta(key, value string) *Error {
	if e == nil {
		return nil
	}
	meta := make(map[string]string, len(e.Meta)+1)
	for k, v := range e.Meta {
		meta[k] = v
	}
	meta[key] = value
	e.Meta = meta
	return e
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInvalidConfig):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrToolNotFound), errors.Is(err, ErrFunctionNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrToolDisabled), errors.Is(err, ErrEngineNotReady), errors.Is(err, ErrBuiltinImmutable):
		return CodeFailedPrecond, true
	case errors.Is(err, ErrToolNotConnected), errors.Is(err, ErrConnectionClosed), errors.Is(err, ErrSettingsStoreDown):
		return CodeUnavailable, true
	case errors.Is(err, ErrToolCallFailed):
		return CodeInternal, true
	default:
		return "", false
	}
}
