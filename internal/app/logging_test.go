package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mcpscene/internal/infra/telemetry"
)

func TestNewLogging_TeesIntoBroadcaster(t *testing.T) {
	core, observed := observer.New(zap.InfoLevel)
	logging := NewLogging(LoggingConfig{Logger: zap.New(core)})
	require.NotNil(t, logging.Broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := logging.Broadcaster.Subscribe(ctx)

	logging.Logger.Named("engine").Info("engine ready")

	require.Equal(t, 1, observed.Len())
	assert.Equal(t, telemetry.LogSourceCore, observed.All()[0].ContextMap()[telemetry.FieldLogSource])

	select {
	case entry := <-entries:
		assert.Equal(t, "engine ready", entry.Message)
		assert.Equal(t, "engine", entry.Logger)
		assert.Equal(t, telemetry.LogSourceCore, entry.Fields[telemetry.FieldLogSource])
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not receive the entry")
	}
}

func TestNewLogging_BroadcastEntriesCarryLogSource(t *testing.T) {
	logging := NewLogging(LoggingConfig{Logger: zap.NewNop()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := logging.Broadcaster.Subscribe(ctx)

	logging.Logger.With(zap.String("tool", "weather-api")).Warn("tool connect failed")

	select {
	case entry := <-entries:
		assert.Equal(t, telemetry.LogSourceCore, entry.Fields[telemetry.FieldLogSource])
		assert.Equal(t, "weather-api", entry.Fields["tool"])
	case <-time.After(time.Second):
		t.Fatal("broadcaster did not receive the entry")
	}
}

func TestNewLogging_KeepsGivenBroadcaster(t *testing.T) {
	broadcaster := telemetry.NewLogBroadcaster(zap.InfoLevel)
	logging := NewLogging(LoggingConfig{Broadcaster: broadcaster})
	assert.Same(t, broadcaster, logging.Broadcaster)
	assert.NotNil(t, NewLogger(logging))
	assert.Same(t, broadcaster, NewLogBroadcaster(logging))
}

func TestNewRootLogger(t *testing.T) {
	logger, err := NewRootLogger("debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewRootLogger("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	_, err = NewRootLogger("loud")
	require.Error(t, err)
}
