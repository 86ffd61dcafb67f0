package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/resultcache"
	"mcpscene/internal/infra/transport"
)

type fakeConn struct {
	mu       sync.Mutex
	calls    int
	pingErr  error
	callErr  error
	result   any
	closed   bool
	funcs    []domain.ToolDescriptor
	callHook func(ctx context.Context) error
}

func (c *fakeConn) ListFunctions(context.Context) ([]domain.ToolDescriptor, error) {
	return c.funcs, nil
}

func (c *fakeConn) Call(ctx context.Context, _ string, _ map[string]any) (any, error) {
	c.mu.Lock()
	c.calls++
	hook := c.callHook
	c.mu.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}
	if c.callErr != nil {
		return nil, c.callErr
	}
	return c.result, nil
}

func (c *fakeConn) Ping(context.Context) error { return c.pingErr }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	fail  map[string]error
	dials atomic.Int64
}

func (d *fakeDialer) Dial(_ context.Context, name string, _ domain.ToolConfig) (domain.ToolConnection, error) {
	d.dials.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[name]; err != nil {
		return nil, err
	}
	conn, ok := d.conns[name]
	if !ok {
		conn = &fakeConn{funcs: []domain.ToolDescriptor{{Name: "default"}}}
		if d.conns == nil {
			d.conns = make(map[string]*fakeConn)
		}
		d.conns[name] = conn
	}
	return conn, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func remoteConfig(priority float64, scenes ...string) domain.ToolConfig {
	return domain.ToolConfig{
		Enabled:      true,
		ServerURL:    "http://localhost:3001/mcp",
		Timeout:      time.Second,
		MaxRetries:   0,
		CacheTimeout: 5 * time.Minute,
		Priority:     priority,
		SceneTypes:   scenes,
	}
}

func newTestRegistry(t *testing.T, dialer domain.ToolDialer, clock *fakeClock) *Registry {
	t.Helper()
	opts := Options{Dialer: dialer, Logger: zap.NewNop()}
	if clock != nil {
		opts.Now = clock.Now
	}
	reg, err := New(opts)
	require.NoError(t, err)
	return reg
}

func TestRegistry_RegisterValidation(t *testing.T) {
	reg := newTestRegistry(t, nil, nil)

	err := reg.Register(" ", remoteConfig(1))
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = reg.Register("unknown", domain.ToolConfig{ServerURL: domain.BuiltinServerURL})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	err = reg.Register(BuiltinDatetime, remoteConfig(1))
	assert.ErrorIs(t, err, domain.ErrBuiltinImmutable)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeFailedPrecond, code)
}

func TestRegistry_ConnectAllIsolatesFailures(t *testing.T) {
	dialer := &fakeDialer{fail: map[string]error{"web-search": errors.New("connection refused")}}
	reg := newTestRegistry(t, dialer, nil)

	require.NoError(t, reg.Register("weather-api", remoteConfig(1, "weather")))
	require.NoError(t, reg.Register("web-search", remoteConfig(0.9, "search")))
	disabled := remoteConfig(1, "memory")
	disabled.Enabled = false
	require.NoError(t, reg.Register("conversation-memory", disabled))
	reg.RegisterBuiltins()

	connected := reg.ConnectAll(context.Background())
	assert.Equal(t, 1, connected)
	assert.EqualValues(t, 2, dialer.dials.Load())

	entry, ok := reg.Get("web-search")
	require.True(t, ok)
	assert.False(t, entry.Connected)
	assert.Contains(t, entry.LastError, "connection refused")

	entry, ok = reg.Get("weather-api")
	require.True(t, ok)
	assert.True(t, entry.Connected)
	assert.Equal(t, domain.ToolKindRemote, entry.Kind)
	require.NotNil(t, entry.LastConnected)
}

func TestRegistry_ConnectFailureKeepsTransportReason(t *testing.T) {
	httpServer := httptest.NewServer(http.NotFoundHandler())
	endpoint := httpServer.URL
	httpServer.Close()

	dialer := &transport.Dialer{Backoff: time.Millisecond, Logger: zap.NewNop()}
	reg := newTestRegistry(t, dialer, nil)
	cfg := remoteConfig(1, "weather")
	cfg.ServerURL = endpoint
	require.NoError(t, reg.Register("weather-api", cfg))

	assert.Equal(t, 0, reg.ConnectAll(context.Background()))

	entry, ok := reg.Get("weather-api")
	require.True(t, ok)
	assert.False(t, entry.Connected)
	assert.Contains(t, entry.LastError, "handshake with weather-api failed: ")
	assert.Contains(t, entry.LastError, "connection refused")
}

func TestRegistry_ListAvailable(t *testing.T) {
	reg := newTestRegistry(t, &fakeDialer{fail: map[string]error{"web-search": errors.New("down")}}, nil)

	require.NoError(t, reg.Register("rag-search", remoteConfig(0.8, "search", "memory")))
	require.NoError(t, reg.Register("weather-api", remoteConfig(1, "weather")))
	require.NoError(t, reg.Register("web-search", remoteConfig(0.9, "search")))
	reg.RegisterBuiltins()
	reg.ConnectAll(context.Background())

	names := func(list []domain.ToolSummary) []string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, s.Name)
		}
		return out
	}

	all := reg.ListAvailable("")
	assert.Equal(t, []string{"weather-api", BuiltinDatetime, BuiltinSystemInfo, "rag-search"}, names(all))

	search := reg.ListAvailable("search")
	assert.Equal(t, []string{BuiltinSystemInfo, "rag-search"}, names(search))

	timeTools := reg.ListAvailable("time")
	assert.Equal(t, []string{BuiltinDatetime, BuiltinSystemInfo}, names(timeTools))
}

func TestMatchesScene(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		scene    string
		want     bool
	}{
		{name: "exact", patterns: []string{"weather"}, scene: "weather", want: true},
		{name: "wildcard", patterns: []string{"*"}, scene: "physical_interaction", want: true},
		{name: "prefix glob", patterns: []string{"emotional_*"}, scene: "emotional_state", want: true},
		{name: "no match", patterns: []string{"search"}, scene: "weather", want: false},
		{name: "empty", patterns: nil, scene: "weather", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesScene(tt.patterns, tt.scene))
		})
	}
}

func TestRegistry_CheckHealth(t *testing.T) {
	dialer := &fakeDialer{conns: map[string]*fakeConn{
		"weather-api": {},
		"web-search":  {pingErr: errors.New("ping timeout")},
	}}
	reg := newTestRegistry(t, dialer, nil)
	require.NoError(t, reg.Register("weather-api", remoteConfig(1)))
	require.NoError(t, reg.Register("web-search", remoteConfig(1)))
	require.NoError(t, reg.Register("rag-search", remoteConfig(1)))
	reg.RegisterBuiltins()
	_, err := reg.Connect(context.Background(), "weather-api")
	require.NoError(t, err)
	_, err = reg.Connect(context.Background(), "web-search")
	require.NoError(t, err)

	report := reg.CheckHealth(context.Background())

	require.Len(t, report, 5)
	assert.Equal(t, domain.HealthHealthy, report["weather-api"].Status)
	assert.Equal(t, domain.HealthError, report["web-search"].Status)
	assert.Equal(t, "ping timeout", report["web-search"].Error)
	assert.Equal(t, domain.HealthDisconnected, report["rag-search"].Status)
	assert.Equal(t, domain.HealthHealthy, report[BuiltinDatetime].Status)
	assert.Equal(t, domain.ToolKindBuiltin, report[BuiltinSystemInfo].Kind)
}

func TestRegistry_CallToolUsesCacheWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	conn := &fakeConn{result: map[string]any{"temperature": 21.0}}
	reg := newTestRegistry(t, &fakeDialer{conns: map[string]*fakeConn{"weather-api": conn}}, clock)

	cfg := remoteConfig(1, "weather")
	cfg.CacheTimeout = time.Minute
	require.NoError(t, reg.Register("weather-api", cfg))
	_, err := reg.Connect(context.Background(), "weather-api")
	require.NoError(t, err)

	args := map[string]any{"query": "今天天气怎么样"}
	first, err := reg.CallTool(context.Background(), "weather-api", "getCurrentWeather", args)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	clock.Advance(30 * time.Second)
	second, err := reg.CallTool(context.Background(), "weather-api", "getCurrentWeather", args)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Empty(t, cmp.Diff(first.Value, second.Value))
	assert.Equal(t, 1, conn.callCount())

	clock.Advance(31 * time.Second)
	third, err := reg.CallTool(context.Background(), "weather-api", "getCurrentWeather", args)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, conn.callCount())
}

func TestRegistry_CallToolCachingDisabled(t *testing.T) {
	conn := &fakeConn{result: "ok"}
	reg := newTestRegistry(t, &fakeDialer{conns: map[string]*fakeConn{"web-search": conn}}, nil)
	require.NoError(t, reg.Register("web-search", remoteConfig(1)))
	_, err := reg.Connect(context.Background(), "web-search")
	require.NoError(t, err)

	reg.SetCaching(false)
	for i := 0; i < 3; i++ {
		res, err := reg.CallTool(context.Background(), "web-search", "searchWeb", nil)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, 3, conn.callCount())
	assert.Equal(t, 0, reg.Cache().Len())
}

func TestRegistry_CallToolErrors(t *testing.T) {
	conn := &fakeConn{callErr: domain.ErrToolCallFailed}
	reg := newTestRegistry(t, &fakeDialer{conns: map[string]*fakeConn{"web-search": conn}}, nil)
	require.NoError(t, reg.Register("web-search", remoteConfig(1)))
	disabled := remoteConfig(1)
	disabled.Enabled = false
	require.NoError(t, reg.Register("rag-search", disabled))
	require.NoError(t, reg.Register("weather-api", remoteConfig(1)))

	_, err := reg.CallTool(context.Background(), "missing", "fn", nil)
	assert.ErrorIs(t, err, domain.ErrToolNotFound)

	_, err = reg.CallTool(context.Background(), "rag-search", "fn", nil)
	assert.ErrorIs(t, err, domain.ErrToolDisabled)

	_, err = reg.CallTool(context.Background(), "weather-api", "fn", nil)
	assert.ErrorIs(t, err, domain.ErrToolNotConnected)

	_, err = reg.Connect(context.Background(), "web-search")
	require.NoError(t, err)
	_, err = reg.CallTool(context.Background(), "web-search", "searchWeb", nil)
	assert.ErrorIs(t, err, domain.ErrToolCallFailed)
	assert.Equal(t, 0, reg.Cache().Len())
}

func TestRegistry_RegisterReplacesConnection(t *testing.T) {
	conn := &fakeConn{result: "ok"}
	reg := newTestRegistry(t, &fakeDialer{conns: map[string]*fakeConn{"weather-api": conn}}, nil)
	require.NoError(t, reg.Register("weather-api", remoteConfig(1)))
	_, err := reg.Connect(context.Background(), "weather-api")
	require.NoError(t, err)
	_, err = reg.CallTool(context.Background(), "weather-api", "getCurrentWeather", nil)
	require.NoError(t, err)
	require.Equal(t, 1, reg.Cache().Len())

	require.NoError(t, reg.Register("weather-api", remoteConfig(0.5)))

	assert.True(t, conn.closed)
	assert.Equal(t, 0, reg.Cache().Len())
	entry, ok := reg.Get("weather-api")
	require.True(t, ok)
	assert.False(t, entry.Connected)
	assert.Equal(t, 0.5, entry.Config.Priority)
}

func TestRegistry_ReconnectAndDisconnect(t *testing.T) {
	dialer := &fakeDialer{}
	reg := newTestRegistry(t, dialer, nil)
	require.NoError(t, reg.Register("weather-api", remoteConfig(1)))
	reg.RegisterBuiltins()

	require.NoError(t, reg.Reconnect(context.Background(), "weather-api"))
	require.NoError(t, reg.Reconnect(context.Background(), "weather-api"))
	assert.EqualValues(t, 2, dialer.dials.Load())
	assert.ErrorIs(t, reg.Reconnect(context.Background(), "missing"), domain.ErrToolNotFound)

	conn := dialer.conns["weather-api"]
	reg.Disconnect()
	assert.True(t, conn.closed)
	assert.Equal(t, 0, reg.Len())
	assert.Empty(t, reg.ListAvailable(""))
}

func TestRegistry_Ping(t *testing.T) {
	dialer := &fakeDialer{conns: map[string]*fakeConn{
		"web-search": {pingErr: errors.New("ping timeout")},
	}}
	reg := newTestRegistry(t, dialer, nil)
	require.NoError(t, reg.Register("weather-api", remoteConfig(1)))
	require.NoError(t, reg.Register("web-search", remoteConfig(1)))
	reg.RegisterBuiltins()

	assert.ErrorIs(t, reg.Ping(context.Background(), "weather-api"), domain.ErrToolNotConnected)
	_, err := reg.Connect(context.Background(), "weather-api")
	require.NoError(t, err)
	_, err = reg.Connect(context.Background(), "web-search")
	require.NoError(t, err)

	assert.NoError(t, reg.Ping(context.Background(), "weather-api"))
	assert.NoError(t, reg.Ping(context.Background(), BuiltinDatetime))
	err = reg.Ping(context.Background(), "web-search")
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnavailable, code)
	assert.ErrorIs(t, reg.Ping(context.Background(), "missing"), domain.ErrToolNotFound)
}

func TestRegistry_UnregisterPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t, nil, nil)
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, reg.Register(name, remoteConfig(1)))
	}
	assert.True(t, reg.Unregister("b"))
	assert.False(t, reg.Unregister("b"))

	var names []string
	for _, entry := range reg.Entries() {
		names = append(names, entry.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestRegistry_StreamableHTTPBackend(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "web-search", Version: "0.1.0"}, nil)
	server.AddTool(&mcp.Tool{
		Name:        "searchWeb",
		Description: "search the web",
		InputSchema: map[string]any{"type": "object"},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: `{"results":[{"title":"a"},{"title":"b"}]}`}},
		}, nil
	})
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, &mcp.StreamableHTTPOptions{JSONResponse: true})
	httpServer := httptest.NewServer(handler)
	defer httpServer.Close()

	reg, err := New(Options{
		Dialer: &transport.Dialer{Backoff: time.Millisecond, Logger: zap.NewNop()},
		Cache:  resultcache.New(resultcache.Options{}),
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	cfg := remoteConfig(0.9, "search")
	cfg.ServerURL = httpServer.URL
	require.NoError(t, reg.Register("web-search", cfg))

	caps, err := reg.Connect(context.Background(), "web-search")
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "searchWeb", caps[0].Name)

	res, err := reg.CallTool(context.Background(), "web-search", "searchWeb", map[string]any{"query": "go"})
	require.NoError(t, err)
	results, ok := res.Value.(map[string]any)["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 2)

	report := reg.CheckHealth(context.Background())
	assert.Equal(t, domain.HealthHealthy, report["web-search"].Status)
	reg.Disconnect()
}
