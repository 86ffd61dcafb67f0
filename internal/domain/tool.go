package domain

import (
	"context"
	"time"
)

// ToolKind tags how a tool is backed.
type ToolKind string

const (
	ToolKindBuiltin ToolKind = "builtin"
	ToolKindRemote  ToolKind = "mcp"
)

// BuiltinServerURL marks a tool config as served in-process.
const BuiltinServerURL = "builtin://"

type ToolConfig struct {
	Enabled      bool
	ServerURL    string
	Timeout      time.Duration
	MaxRetries   int
	CacheTimeout time.Duration
	Priority     float64
	SceneTypes   []string
	Description  string
	Headers      map[string]string
}

// IsBuiltin reports whether the config points at an in-process tool.
func (c ToolConfig) IsBuiltin() bool {
	return c.ServerURL == BuiltinServerURL
}

// Clone returns a deep copy.
func (c ToolConfig) Clone() ToolConfig {
	out := c
	if c.SceneTypes != nil {
		out.SceneTypes = append([]string(nil), c.SceneTypes...)
	}
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// ToolDescriptor describes one callable function exposed by a tool.
type ToolDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"inputSchema,omitempty"`
}

type ToolSummary struct {
	Name       string           `json:"name"`
	Kind       ToolKind         `json:"type"`
	Priority   float64          `json:"priority"`
	SceneTypes []string         `json:"sceneTypes"`
	Functions  []ToolDescriptor `json:"tools"`
}

type HealthStatus string

const (
	HealthHealthy      HealthStatus = "healthy"
	HealthDisconnected HealthStatus = "disconnected"
	HealthError        HealthStatus = "error"
)

type ToolHealth struct {
	Status        HealthStatus `json:"status"`
	Kind          ToolKind     `json:"type"`
	LastConnected *time.Time   `json:"lastConnected,omitempty"`
	Error         string       `json:"error,omitempty"`
}

type ToolCallRequest struct {
	ToolName     string         `json:"toolName"`
	FunctionName string         `json:"function"`
	Args         map[string]any `json:"args"`
	StartTime    time.Time      `json:"-"`
}

type ToolCallOutcome struct {
	ToolName        string `json:"toolName"`
	FunctionName    string `json:"function"`
	Success         bool   `json:"success"`
	Result          any    `json:"result,omitempty"`
	Error           string `json:"error,omitempty"`
	Cached          bool   `json:"cached,omitempty"`
	ExecutionTimeMs int64  `json:"executionTime"`
}

// ToolCaller invokes one tool function, consulting the result cache.
type ToolCaller interface {
	CallTool(ctx context.Context, toolName, functionName string, args map[string]any) (CallResult, error)
}

// CallResult is a tool call value plus whether it came from the cache.
type CallResult struct {
	Value  any
	Cached bool
}

// ToolConnection is a live client for one remote tool backend.
type ToolConnection interface {
	ListFunctions(ctx context.Context) ([]ToolDescriptor, error)
	Call(ctx context.Context, functionName string, args map[string]any) (any, error)
	Ping(ctx context.Context) error
	Close() error
}

// ToolDialer opens a connection to a remote tool and completes the handshake.
type ToolDialer interface {
	Dial(ctx context.Context, name string, cfg ToolConfig) (ToolConnection, error)
}
