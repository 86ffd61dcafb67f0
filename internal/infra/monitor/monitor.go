// Package monitor periodically probes tool health and reconnects remote tools
// that dropped.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

const heartbeatName = "tool_monitor"

// Registry is the registry surface the monitor drives.
type Registry interface {
	CheckHealth(ctx context.Context) map[string]domain.ToolHealth
	Reconnect(ctx context.Context, name string) error
	Configs() map[string]domain.ToolConfig
}

type Options struct {
	Registry Registry
	// Schedule is a cron spec; descriptors such as "@every 1m" are accepted.
	Schedule string
	// RunTimeout bounds one probe and reconnect pass.
	RunTimeout time.Duration
	Health     *telemetry.HealthTracker
	Logger     *zap.Logger
	Now        func() time.Time
}

// Report is the outcome of one pass.
type Report struct {
	CheckedAt   time.Time                    `json:"checkedAt"`
	Health      map[string]domain.ToolHealth `json:"health"`
	Reconnected []string                     `json:"reconnected,omitempty"`
	Failed      []string                     `json:"failed,omitempty"`
}

type Monitor struct {
	registry   Registry
	schedule   string
	interval   time.Duration
	runTimeout time.Duration
	health     *telemetry.HealthTracker
	logger     *zap.Logger
	now        func() time.Time

	cron      *cron.Cron
	heartbeat *telemetry.Heartbeat

	mu      sync.Mutex
	running bool
	last    Report
}

func New(opts Options) (*Monitor, error) {
	if opts.Registry == nil {
		return nil, errors.New("monitor requires a registry")
	}
	spec := opts.Schedule
	if spec == "" {
		spec = domain.DefaultHealthSchedule
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse health schedule %q: %w", spec, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	next := schedule.Next(now())
	interval := schedule.Next(next).Sub(next)
	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = interval
	}

	return &Monitor{
		registry:   opts.Registry,
		schedule:   spec,
		interval:   interval,
		runTimeout: runTimeout,
		health:     opts.Health,
		logger:     logger.Named("monitor"),
		now:        now,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Start schedules the periodic pass. Passes that overrun the next tick are
// skipped.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor is already running")
	}
	if _, err := m.cron.AddFunc(m.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.runTimeout)
		defer cancel()
		m.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule health check: %w", err)
	}
	if m.health != nil {
		m.heartbeat = m.health.Register(heartbeatName, 3*m.interval)
	}
	m.cron.Start()
	m.running = true
	m.logger.Info("health monitor started", zap.String("schedule", m.schedule))
	return nil
}

// Stop halts scheduling and waits for an in-flight pass, up to ctx.
func (m *Monitor) Stop(ctx context.Context) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	heartbeat := m.heartbeat
	m.heartbeat = nil
	m.mu.Unlock()

	if heartbeat != nil {
		heartbeat.Stop()
	}
	select {
	case <-m.cron.Stop().Done():
	case <-ctx.Done():
		m.logger.Warn("health monitor stop timed out")
	}
}

// RunOnce probes every tool and reconnects enabled remote tools that are
// disconnected or failing.
func (m *Monitor) RunOnce(ctx context.Context) Report {
	started := m.now()
	health := m.registry.CheckHealth(ctx)
	configs := m.registry.Configs()

	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{CheckedAt: started, Health: health}
	for _, name := range names {
		status := health[name]
		cfg, ok := configs[name]
		if !ok || !cfg.Enabled || cfg.IsBuiltin() || status.Status == domain.HealthHealthy {
			continue
		}
		if err := m.registry.Reconnect(ctx, name); err != nil {
			report.Failed = append(report.Failed, name)
			m.logger.Warn("tool reconnect failed",
				telemetry.EventField(telemetry.EventReconnect),
				telemetry.ToolField(name),
				zap.String("status", string(status.Status)),
				zap.Error(err),
			)
			continue
		}
		report.Reconnected = append(report.Reconnected, name)
		m.logger.Info("tool reconnected",
			telemetry.EventField(telemetry.EventReconnect),
			telemetry.ToolField(name),
		)
	}

	m.logger.Debug("health check complete",
		telemetry.EventField(telemetry.EventHealthCheck),
		telemetry.DurationField(m.now().Sub(started)),
		zap.Int("tools", len(health)),
		zap.Int("reconnected", len(report.Reconnected)),
		zap.Int("failed", len(report.Failed)),
	)

	m.mu.Lock()
	m.last = report
	heartbeat := m.heartbeat
	m.mu.Unlock()
	if heartbeat != nil {
		heartbeat.Beat()
	}
	return report
}

// LastReport returns the most recent pass, or a zero Report before the first.
func (m *Monitor) LastReport() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
