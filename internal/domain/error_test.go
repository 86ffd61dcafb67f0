package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	assert.Equal(t, "registry.CallTool: NOT_FOUND: unknown tool x",
		E(CodeNotFound, "registry.CallTool", "unknown tool x", ErrToolNotFound).Error())
	assert.Equal(t, "UNAVAILABLE: connection closed", E(CodeUnavailable, "", "", ErrConnectionClosed).Error())
	assert.Equal(t, "INTERNAL", (&Error{Code: CodeInternal}).Error())
	assert.Equal(t, "op: INTERNAL", (&Error{Code: CodeInternal, Op: "op"}).Error())
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(CodeInternal, "op", nil))

	plain := errors.New("boom")
	wrapped := Wrap(CodeUnavailable, "transport.Dial", plain)
	assert.Equal(t, CodeUnavailable, wrapped.Code)
	assert.ErrorIs(t, wrapped, plain)

	inner := E(CodeNotFound, "", "missing", ErrToolNotFound)
	rewrapped := Wrap(CodeInternal, "registry.Ping", inner)
	assert.Equal(t, CodeNotFound, rewrapped.Code)
	assert.Equal(t, "registry.Ping", rewrapped.Op)

	named := E(CodeNotFound, "first", "missing", nil)
	assert.Same(t, named, Wrap(CodeInternal, "second", named))
}

func TestCodeFrom(t *testing.T) {
	tests := []struct {
		err  error
		code ErrorCode
		ok   bool
	}{
		{nil, "", false},
		{errors.New("plain"), "", false},
		{fmt.Errorf("load: %w", ErrInvalidConfig), CodeInvalidArgument, true},
		{ErrFunctionNotFound, CodeNotFound, true},
		{ErrBuiltinImmutable, CodeFailedPrecond, true},
		{ErrSettingsStoreDown, CodeUnavailable, true},
		{ErrToolCallFailed, CodeInternal, true},
		{E(CodeDeadlineExceeded, "op", "slow", ErrToolNotFound), CodeDeadlineExceeded, true},
	}
	for _, tt := range tests {
		code, ok := CodeFrom(tt.err)
		assert.Equal(t, tt.ok, ok, "%v", tt.err)
		assert.Equal(t, tt.code, code, "%v", tt.err)
	}
}

func TestError_WithMeta(t *testing.T) {
	err := E(CodeInternal, "op", "msg", nil).WithMeta("tool", "weather-api").WithMeta("attempt", "2")
	require.Len(t, err.Meta, 2)
	assert.Equal(t, "weather-api", err.Meta["tool"])

	var nilErr *Error
	assert.Nil(t, nilErr.WithMeta("k", "v"))
	assert.Equal(t, "", nilErr.Error())
}
