package telemetry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

const DefaultLogBufferSize = 128

// LogEntry is one log record fanned out to live subscribers.
type LogEntry struct {
	Logger    string         `json:"logger"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster is a zap core that copies entries to subscribers such as
// the admin event stream. Slow subscribers drop entries.
type LogBroadcaster struct {
	minLevel zapcore.Level
	mu       sync.RWMutex
	subs     map[chan LogEntry]struct{}
}

func NewLogBroadcaster(minLevel zapcore.Level) *LogBroadcaster {
	return &LogBroadcaster{
		minLevel: minLevel,
		subs:     make(map[chan LogEntry]struct{}),
	}
}

func (b *LogBroadcaster) Core() zapcore.Core {
	return &logBroadcasterCore{broadcaster: b}
}

// Subscribe returns a channel that is closed when ctx is done.
func (b *LogBroadcaster) Subscribe(ctx context.Context) <-chan LogEntry {
	ch := make(chan LogEntry, DefaultLogBufferSize)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *LogBroadcaster) publish(entry LogEntry) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- entry:
		default:
		}
	}
}

type logBroadcasterCore struct {
	broadcaster *LogBroadcaster
	fields      []zapcore.Field
}

func (c *logBroadcasterCore) Enabled(level zapcore.Level) bool {
	return level >= c.broadcaster.minLevel
}

func (c *logBroadcasterCore) With(fields []zapcore.Field) zapcore.Core {
	if len(fields) == 0 {
		return c
	}
	combined := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	combined = append(combined, c.fields...)
	combined = append(combined, fields...)
	return &logBroadcasterCore{broadcaster: c.broadcaster, fields: combined}
}

func (c *logBroadcasterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *logBroadcasterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	encoder := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(encoder)
	}
	for _, field := range fields {
		field.AddTo(encoder)
	}

	name := entry.LoggerName
	if name == "" {
		name = "mcpscene"
	}
	out := LogEntry{
		Logger:    name,
		Level:     entry.Level.String(),
		Timestamp: entry.Time.UTC(),
		Message:   entry.Message,
	}
	if len(encoder.Fields) > 0 {
		out.Fields = encoder.Fields
	}
	c.broadcaster.publish(out)
	return nil
}

func (c *logBroadcasterCore) Sync() error {
	return nil
}

var _ zapcore.Core = (*logBroadcasterCore)(nil)
