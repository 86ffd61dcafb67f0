package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/telemetry"
)

type Options struct {
	Name       string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the linear retry step. Zero uses domain.DefaultRetryBackoff.
	Backoff   time.Duration
	Transport TransportFactory
	Logger    *zap.Logger
	Metrics   domain.Metrics
}

// Connection is an MCP client session for one tool backend. Every request runs
// under the per-attempt timeout and is retried with linear backoff.
type Connection struct {
	name       string
	timeout    time.Duration
	maxRetries int
	backoff    linearBackoff
	factory    TransportFactory
	client     *mcp.Client
	logger     *zap.Logger
	metrics    domain.Metrics

	mu      sync.RWMutex
	session *mcp.ClientSession
	closed  bool
}

// Dial opens a session and completes the MCP initialize handshake.
func Dial(ctx context.Context, opts Options) (*Connection, error) {
	if opts.Transport == nil {
		return nil, errors.New("transport factory is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = domain.DefaultToolTimeout
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	step := opts.Backoff
	if step == 0 {
		step = domain.DefaultRetryBackoff
	}

	c := &Connection{
		name:       opts.Name,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    newLinearBackoff(step),
		factory:    opts.Transport,
		client:     mcp.NewClient(&mcp.Implementation{Name: domain.ClientName, Version: domain.ClientVersion}, nil),
		logger:     logger.Named("tool_conn").With(telemetry.ToolField(opts.Name)),
		metrics:    metrics,
	}

	err := c.withRetry(ctx, "initialize", func(attemptCtx context.Context) error {
		transport, err := c.factory(attemptCtx)
		if err != nil {
			return err
		}
		session, err := c.client.Connect(attemptCtx, transport, nil)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.session = session
		c.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, domain.E(domain.CodeUnavailable, "transport.Dial", fmt.Sprintf("handshake with %s failed: %v", opts.Name, err), err)
	}
	return c, nil
}

// ProtocolVersion reports the version negotiated during the handshake.
func (c *Connection) ProtocolVersion() string {
	session, err := c.current()
	if err != nil {
		return ""
	}
	if res := session.InitializeResult(); res != nil {
		return res.ProtocolVersion
	}
	return ""
}

// ListFunctions returns every tool the backend exposes, following pagination.
func (c *Connection) ListFunctions(ctx context.Context) ([]domain.ToolDescriptor, error) {
	var out []domain.ToolDescriptor
	err := c.withRetry(ctx, "tools/list", func(attemptCtx context.Context) error {
		session, err := c.current()
		if err != nil {
			return err
		}
		out = out[:0]
		params := &mcp.ListToolsParams{}
		for {
			res, err := session.ListTools(attemptCtx, params)
			if err != nil {
				return err
			}
			for _, tool := range res.Tools {
				if tool == nil {
					continue
				}
				out = append(out, domain.ToolDescriptor{
					Name:        tool.Name,
					Description: tool.Description,
					InputSchema: tool.InputSchema,
				})
			}
			if res.NextCursor == "" {
				return nil
			}
			params = &mcp.ListToolsParams{Cursor: res.NextCursor}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Call invokes a function on the backend. A result flagged isError counts as a
// failed attempt.
func (c *Connection) Call(ctx context.Context, functionName string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	var value any
	err := c.withRetry(ctx, "tools/call", func(attemptCtx context.Context) error {
		session, err := c.current()
		if err != nil {
			return err
		}
		res, err := session.CallTool(attemptCtx, &mcp.CallToolParams{Name: functionName, Arguments: args})
		if err != nil {
			return err
		}
		if res.IsError {
			return fmt.Errorf("%w: %s", domain.ErrToolCallFailed, contentText(res.Content))
		}
		value, err = decodeResult(res)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Ping probes liveness with the same retry policy as calls.
func (c *Connection) Ping(ctx context.Context) error {
	return c.withRetry(ctx, "ping", func(attemptCtx context.Context) error {
		session, err := c.current()
		if err != nil {
			return err
		}
		return session.Ping(attemptCtx, &mcp.PingParams{})
	})
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *Connection) current() (*mcp.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed || c.session == nil {
		return nil, domain.ErrConnectionClosed
	}
	return c.session, nil
}

// withRetry runs fn up to maxRetries+1 times. Retry n waits n × backoff first.
// The last error is returned once attempts are exhausted or ctx is done.
func (c *Connection) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.ObserveRetry(c.name, op)
			if err := c.backoff.Wait(ctx, attempt); err != nil {
				break
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, domain.ErrConnectionClosed) {
			break
		}
		c.logger.Debug("tool request attempt failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.maxRetries+1),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return lastErr
}

func decodeResult(res *mcp.CallToolResult) (any, error) {
	if res.StructuredContent != nil {
		return normalizeJSON(res.StructuredContent)
	}
	texts := make([]string, 0, len(res.Content))
	for _, content := range res.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			texts = append(texts, text.Text)
		}
	}
	switch len(texts) {
	case 0:
		return nil, nil
	case 1:
		var parsed any
		if err := json.Unmarshal([]byte(texts[0]), &parsed); err == nil {
			return parsed, nil
		}
		return texts[0], nil
	default:
		return texts, nil
	}
}

// normalizeJSON round-trips v so callers always see plain maps and slices.
func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode structured content: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode structured content: %w", err)
	}
	return out, nil
}

func contentText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		if text, ok := content.(*mcp.TextContent); ok && text.Text != "" {
			parts = append(parts, text.Text)
		}
	}
	if len(parts) == 0 {
		return "no details"
	}
	return strings.Join(parts, "; ")
}

// Dialer opens Streamable HTTP connections for remote tool configs.
type Dialer struct {
	HTTPClient *http.Client
	Backoff    time.Duration
	Logger     *zap.Logger
	Metrics    domain.Metrics
}

func (d *Dialer) Dial(ctx context.Context, name string, cfg domain.ToolConfig) (domain.ToolConnection, error) {
	factory, err := StreamableHTTPFactory(cfg.ServerURL, cfg.Headers, d.HTTPClient)
	if err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "transport.Dial", name+": "+err.Error(), err)
	}
	return Dial(ctx, Options{
		Name:       name,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    d.Backoff,
		Transport:  factory,
		Logger:     d.Logger,
		Metrics:    d.Metrics,
	})
}

var _ domain.ToolConnection = (*Connection)(nil)
var _ domain.ToolDialer = (*Dialer)(nil)
