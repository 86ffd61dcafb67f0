package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/resultcache"
	"mcpscene/internal/infra/telemetry"
)

type Options struct {
	Dialer  domain.ToolDialer
	Cache   *resultcache.Cache
	Metrics domain.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Entry is a read-only snapshot of one registered tool.
type Entry struct {
	Name          string
	Config        domain.ToolConfig
	Kind          domain.ToolKind
	Connected     bool
	Capabilities  []domain.ToolDescriptor
	LastConnected *time.Time
	LastError     string
}

type toolEntry struct {
	config        domain.ToolConfig
	builtin       *builtinTool
	backend       backend
	capabilities  []domain.ToolDescriptor
	lastConnected time.Time
	lastErr       error
}

func (e *toolEntry) kind() domain.ToolKind {
	if e.builtin != nil {
		return domain.ToolKindBuiltin
	}
	return domain.ToolKindRemote
}

func (e *toolEntry) available() bool {
	return e.config.Enabled && e.backend != nil
}

// Registry owns tool configs and their live backends.
type Registry struct {
	dialer   domain.ToolDialer
	cache    *resultcache.Cache
	metrics  domain.Metrics
	logger   *zap.Logger
	now      func() time.Time
	builtins map[string]*builtinTool
	caching  atomic.Bool

	mu      sync.RWMutex
	entries map[string]*toolEntry
	order   []string
}

func New(opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cache := opts.Cache
	if cache == nil {
		cache = resultcache.New(resultcache.Options{Now: now})
	}
	builtins, err := newBuiltinTools(now)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		dialer:   opts.Dialer,
		cache:    cache,
		metrics:  metrics,
		logger:   logger.Named("registry"),
		now:      now,
		builtins: builtins,
		entries:  make(map[string]*toolEntry),
	}
	r.caching.Store(domain.DefaultEnableCaching)
	return r, nil
}

// Cache exposes the result cache for administrative invalidation.
func (r *Registry) Cache() *resultcache.Cache {
	return r.cache
}

// SetCaching toggles result cache reads and writes.
func (r *Registry) SetCaching(enabled bool) {
	r.caching.Store(enabled)
}

// Register adds or replaces a tool config. A replaced remote connection is closed;
// the new config is connected by Connect or ConnectAll.
func (r *Registry) Register(name string, cfg domain.ToolConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.E(domain.CodeInvalidArgument, "registry.Register", "tool name is required", domain.ErrInvalidConfig)
	}
	builtin, isBuiltinName := r.builtins[name]
	switch {
	case cfg.IsBuiltin() && !isBuiltinName:
		return domain.E(domain.CodeInvalidArgument, "registry.Register", fmt.Sprintf("unknown built-in tool %q", name), domain.ErrInvalidConfig)
	case isBuiltinName && !cfg.IsBuiltin():
		return domain.E(domain.CodeFailedPrecond, "registry.Register", fmt.Sprintf("%s is a built-in tool", name), domain.ErrBuiltinImmutable)
	}

	entry := &toolEntry{config: cfg.Clone()}
	if isBuiltinName {
		entry.builtin = builtin
		entry.backend = &builtinBackend{tool: builtin}
		entry.capabilities = builtin.descriptors()
		entry.lastConnected = r.now()
	}

	r.mu.Lock()
	old, exists := r.entries[name]
	r.entries[name] = entry
	if !exists {
		r.order = append(r.order, name)
	}
	r.mu.Unlock()

	if exists {
		r.closeBackend(name, old)
		r.cache.Invalidate(name)
	}
	return nil
}

// RegisterBuiltins registers every in-process tool that has no entry yet.
func (r *Registry) RegisterBuiltins() {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := r.Get(name); ok {
			continue
		}
		_ = r.Register(name, r.builtins[name].config)
	}
}

// BuiltinConfig returns the default config of an in-process tool.
func (r *Registry) BuiltinConfig(name string) (domain.ToolConfig, bool) {
	tool, ok := r.builtins[name]
	if !ok {
		return domain.ToolConfig{}, false
	}
	return tool.config.Clone(), true
}

func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	entry, ok := r.entries[name]
	if ok {
		delete(r.entries, name)
		r.order = removeName(r.order, name)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.closeBackend(name, entry)
	r.cache.Invalidate(name)
	return true
}

// Connect dials a remote tool, completes the handshake and lists its functions.
// Built-in tools return their capabilities without dialing.
func (r *Registry) Connect(ctx context.Context, name string) ([]domain.ToolDescriptor, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	var cfg domain.ToolConfig
	if ok {
		cfg = entry.config.Clone()
		if entry.builtin != nil {
			caps := append([]domain.ToolDescriptor(nil), entry.capabilities...)
			r.mu.RUnlock()
			return caps, nil
		}
	}
	r.mu.RUnlock()
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "registry.Connect", name, domain.ErrToolNotFound)
	}
	if !cfg.Enabled {
		return nil, domain.E(domain.CodeFailedPrecond, "registry.Connect", name, domain.ErrToolDisabled)
	}
	if r.dialer == nil {
		return nil, domain.E(domain.CodeUnavailable, "registry.Connect", "no dialer configured", domain.ErrToolNotConnected)
	}

	started := r.now()
	conn, err := r.dialer.Dial(ctx, name, cfg)
	if err == nil {
		var caps []domain.ToolDescriptor
		caps, err = conn.ListFunctions(ctx)
		if err == nil {
			if !r.attach(name, entry, conn, caps) {
				_ = conn.Close()
				return nil, domain.E(domain.CodeFailedPrecond, "registry.Connect", name+" was reconfigured during connect", domain.ErrToolNotConnected)
			}
			r.logger.Info("tool connected",
				telemetry.EventField(telemetry.EventConnectSuccess),
				telemetry.ToolField(name),
				telemetry.DurationField(r.now().Sub(started)),
				zap.Int("functions", len(caps)),
			)
			return caps, nil
		}
		_ = conn.Close()
	}

	r.mu.Lock()
	if current := r.entries[name]; current == entry {
		entry.lastErr = err
	}
	r.mu.Unlock()
	r.logger.Warn("tool connect failed",
		telemetry.EventField(telemetry.EventConnectFailure),
		telemetry.ToolField(name),
		telemetry.DurationField(r.now().Sub(started)),
		zap.Error(err),
	)
	return nil, domain.Wrap(domain.CodeUnavailable, "registry.Connect", err)
}

func (r *Registry) attach(name string, entry *toolEntry, conn domain.ToolConnection, caps []domain.ToolDescriptor) bool {
	r.mu.Lock()
	if current := r.entries[name]; current != entry {
		r.mu.Unlock()
		return false
	}
	previous := entry.backend
	entry.backend = &remoteBackend{conn: conn}
	entry.capabilities = caps
	entry.lastConnected = r.now()
	entry.lastErr = nil
	r.mu.Unlock()
	if previous != nil {
		_ = previous.Close()
	}
	return true
}

// ConnectAll connects every enabled remote tool concurrently and returns the
// number of successes. Failures are logged and leave the tool disconnected.
func (r *Registry) ConnectAll(ctx context.Context) int {
	var targets []string
	r.mu.RLock()
	for _, name := range r.order {
		entry := r.entries[name]
		if entry.builtin == nil && entry.config.Enabled {
			targets = append(targets, name)
		}
	}
	r.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		connected atomic.Int64
	)
	for _, name := range targets {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := r.Connect(ctx, name); err == nil {
				connected.Add(1)
			}
		}(name)
	}
	wg.Wait()

	count := int(connected.Load())
	r.logger.Info("remote tools connected", zap.Int("connected", count), zap.Int("attempted", len(targets)))
	return count
}

// Reconnect closes any existing connection of a remote tool and connects again.
func (r *Registry) Reconnect(ctx context.Context, name string) error {
	r.mu.Lock()
	entry, ok := r.entries[name]
	var previous backend
	if ok && entry.builtin == nil {
		previous = entry.backend
		entry.backend = nil
	}
	r.mu.Unlock()
	if !ok {
		return domain.E(domain.CodeNotFound, "registry.Reconnect", name, domain.ErrToolNotFound)
	}
	if previous != nil {
		_ = previous.Close()
	}
	_, err := r.Connect(ctx, name)
	return err
}

// Disconnect closes every remote connection and clears the registry.
func (r *Registry) Disconnect() {
	r.mu.Lock()
	entries := r.entries
	order := r.order
	r.entries = make(map[string]*toolEntry)
	r.order = nil
	r.mu.Unlock()

	for _, name := range order {
		r.closeBackend(name, entries[name])
	}
	r.cache.Invalidate("")
}

func (r *Registry) closeBackend(name string, entry *toolEntry) {
	if entry == nil || entry.backend == nil || entry.builtin != nil {
		return
	}
	if err := entry.backend.Close(); err != nil {
		r.logger.Warn("tool close failed", telemetry.ToolField(name), zap.Error(err))
	}
}

func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	return snapshot(name, entry), true
}

// Entries returns snapshots in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, snapshot(name, r.entries[name]))
	}
	return out
}

// Configs returns a copy of every registered config keyed by name.
func (r *Registry) Configs() map[string]domain.ToolConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.ToolConfig, len(r.entries))
	for name, entry := range r.entries {
		out[name] = entry.config.Clone()
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func snapshot(name string, entry *toolEntry) Entry {
	out := Entry{
		Name:         name,
		Config:       entry.config.Clone(),
		Kind:         entry.kind(),
		Connected:    entry.backend != nil,
		Capabilities: append([]domain.ToolDescriptor(nil), entry.capabilities...),
	}
	if !entry.lastConnected.IsZero() {
		ts := entry.lastConnected
		out.LastConnected = &ts
	}
	if entry.lastErr != nil {
		out.LastError = entry.lastErr.Error()
	}
	return out
}

// ListAvailable returns enabled tools that are connected or built-in, optionally
// filtered by a scene type, sorted by descending priority.
func (r *Registry) ListAvailable(sceneType string) []domain.ToolSummary {
	r.mu.RLock()
	out := make([]domain.ToolSummary, 0, len(r.order))
	for _, name := range r.order {
		entry := r.entries[name]
		if !entry.available() {
			continue
		}
		if sceneType != "" && !MatchesScene(entry.config.SceneTypes, sceneType) {
			continue
		}
		out = append(out, domain.ToolSummary{
			Name:       name,
			Kind:       entry.kind(),
			Priority:   entry.config.Priority,
			SceneTypes: append([]string(nil), entry.config.SceneTypes...),
			Functions:  append([]domain.ToolDescriptor(nil), entry.capabilities...),
		})
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// MatchesScene reports whether any glob pattern in sceneTypes matches sceneType.
func MatchesScene(sceneTypes []string, sceneType string) bool {
	for _, pattern := range sceneTypes {
		if pattern == sceneType {
			return true
		}
		if ok, err := doublestar.Match(pattern, sceneType); err == nil && ok {
			return true
		}
	}
	return false
}

// Ping probes one tool with its configured timeout.
func (r *Registry) Ping(ctx context.Context, name string) error {
	r.mu.RLock()
	entry, ok := r.entries[name]
	var (
		b       backend
		timeout time.Duration
	)
	if ok {
		b = entry.backend
		timeout = entry.config.Timeout
	}
	r.mu.RUnlock()

	switch {
	case !ok:
		return domain.E(domain.CodeNotFound, "registry.Ping", name, domain.ErrToolNotFound)
	case b == nil:
		return domain.E(domain.CodeUnavailable, "registry.Ping", name, domain.ErrToolNotConnected)
	}
	if timeout <= 0 {
		timeout = domain.DefaultPingTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := b.Ping(pingCtx); err != nil {
		return domain.Wrap(domain.CodeUnavailable, "registry.Ping", err)
	}
	return nil
}

// CheckHealth probes every tool. Built-ins are always healthy; remote probe
// failures are reported, never returned.
func (r *Registry) CheckHealth(ctx context.Context) map[string]domain.ToolHealth {
	type probe struct {
		name    string
		backend backend
		timeout time.Duration
	}

	report := make(map[string]domain.ToolHealth)
	var probes []probe

	r.mu.RLock()
	for _, name := range r.order {
		entry := r.entries[name]
		health := domain.ToolHealth{Kind: entry.kind()}
		if !entry.lastConnected.IsZero() {
			ts := entry.lastConnected
			health.LastConnected = &ts
		}
		switch {
		case entry.builtin != nil:
			health.Status = domain.HealthHealthy
		case entry.backend == nil:
			health.Status = domain.HealthDisconnected
			if entry.lastErr != nil {
				health.Error = entry.lastErr.Error()
			}
		default:
			probes = append(probes, probe{name: name, backend: entry.backend, timeout: entry.config.Timeout})
		}
		report[name] = health
	}
	r.mu.RUnlock()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		now = r.now()
	)
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			timeout := p.timeout
			if timeout <= 0 {
				timeout = domain.DefaultPingTimeout
			}
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := p.backend.Ping(pingCtx)
			cancel()

			mu.Lock()
			health := report[p.name]
			if err != nil {
				health.Status = domain.HealthError
				health.Error = err.Error()
				r.logger.Warn("tool ping failed",
					telemetry.EventField(telemetry.EventPingFailure),
					telemetry.ToolField(p.name),
					zap.Error(err),
				)
			} else {
				health.Status = domain.HealthHealthy
			}
			report[p.name] = health
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	r.recordHealth(report, now)
	return report
}

func (r *Registry) recordHealth(report map[string]domain.ToolHealth, at time.Time) {
	r.mu.Lock()
	for name, health := range report {
		if entry, ok := r.entries[name]; ok && entry.builtin == nil && entry.backend != nil {
			if health.Status == domain.HealthError {
				entry.lastErr = errors.New(health.Error)
			} else {
				entry.lastErr = nil
				entry.lastConnected = at
			}
		}
	}
	r.mu.Unlock()
	for name, health := range report {
		r.metrics.SetToolHealth(name, health.Status)
	}
}

// CallTool invokes one function, serving from the result cache when a fresh
// entry exists and caching is enabled.
func (r *Registry) CallTool(ctx context.Context, toolName, functionName string, args map[string]any) (domain.CallResult, error) {
	const op = "registry.CallTool"

	r.mu.RLock()
	entry, ok := r.entries[toolName]
	var (
		cfg  domain.ToolConfig
		impl backend
	)
	if ok {
		cfg = entry.config
		impl = entry.backend
	}
	r.mu.RUnlock()

	switch {
	case !ok:
		return domain.CallResult{}, domain.E(domain.CodeNotFound, op, toolName, domain.ErrToolNotFound)
	case !cfg.Enabled:
		return domain.CallResult{}, domain.E(domain.CodeFailedPrecond, op, toolName, domain.ErrToolDisabled)
	case impl == nil:
		return domain.CallResult{}, domain.E(domain.CodeUnavailable, op, toolName, domain.ErrToolNotConnected)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "tool.call", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.function", functionName),
	))
	defer span.End()

	useCache := r.caching.Load() && cfg.CacheTimeout > 0
	var key string
	if useCache {
		key, useCache = resultcache.Key(toolName, functionName, args)
	}
	if useCache {
		value, hit := r.cache.Get(key, cfg.CacheTimeout)
		r.metrics.ObserveCacheLookup(toolName, hit)
		if hit {
			span.SetAttributes(attribute.Bool("tool.cached", true))
			r.metrics.ObserveToolCall(domain.ToolCallMetric{
				Tool:     toolName,
				Function: functionName,
				Status:   domain.CallStatusSuccess,
				Cached:   true,
			})
			return domain.CallResult{Value: value, Cached: true}, nil
		}
	}

	started := r.now()
	value, err := impl.Call(ctx, functionName, args)
	duration := r.now().Sub(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.ObserveToolCall(domain.ToolCallMetric{
			Tool:     toolName,
			Function: functionName,
			Status:   domain.CallStatusError,
			Duration: duration,
		})
		telemetry.LoggerWithRequest(ctx, r.logger).Warn("tool call failed",
			telemetry.EventField(telemetry.EventCallFailure),
			telemetry.ToolField(toolName),
			telemetry.FunctionField(functionName),
			telemetry.DurationField(duration),
			zap.Error(err),
		)
		return domain.CallResult{}, domain.Wrap(domain.CodeUnavailable, op, err)
	}

	if useCache {
		r.cache.Put(key, value)
	}
	r.metrics.ObserveToolCall(domain.ToolCallMetric{
		Tool:     toolName,
		Function: functionName,
		Status:   domain.CallStatusSuccess,
		Duration: duration,
	})
	return domain.CallResult{Value: value}, nil
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, existing := range names {
		if existing != name {
			out = append(out, existing)
		}
	}
	return out
}
