package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLogBroadcaster_PublishesToSubscribers(t *testing.T) {
	broadcaster := NewLogBroadcaster(zapcore.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broadcaster.Subscribe(ctx)
	logger := zap.New(broadcaster.Core()).Named("engine").With(ToolField("web-search"))

	logger.Debug("dropped")
	logger.Info("round complete", RoundIDField("r-1"))

	select {
	case entry := <-ch:
		assert.Equal(t, "engine", entry.Logger)
		assert.Equal(t, "info", entry.Level)
		assert.Equal(t, "round complete", entry.Message)
		assert.Equal(t, "web-search", entry.Fields[FieldTool])
		assert.Equal(t, "r-1", entry.Fields[FieldRoundID])
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}
}

func TestLogBroadcaster_SubscriptionClosesWithContext(t *testing.T) {
	broadcaster := NewLogBroadcaster(zapcore.DebugLevel)
	ctx, cancel := context.WithCancel(context.Background())
	ch := broadcaster.Subscribe(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
