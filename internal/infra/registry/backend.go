package registry

import (
	"context"

	"mcpscene/internal/domain"
)

// backend is the resolved implementation behind one registered tool.
type backend interface {
	Kind() domain.ToolKind
	Call(ctx context.Context, functionName string, args map[string]any) (any, error)
	Ping(ctx context.Context) error
	Close() error
}

type remoteBackend struct {
	conn domain.ToolConnection
}

func (b *remoteBackend) Kind() domain.ToolKind { return domain.ToolKindRemote }

func (b *remoteBackend) Call(ctx context.Context, functionName string, args map[string]any) (any, error) {
	return b.conn.Call(ctx, functionName, args)
}

func (b *remoteBackend) Ping(ctx context.Context) error { return b.conn.Ping(ctx) }

func (b *remoteBackend) Close() error { return b.conn.Close() }

type builtinBackend struct {
	tool *builtinTool
}

func (b *builtinBackend) Kind() domain.ToolKind { return domain.ToolKindBuiltin }

func (b *builtinBackend) Call(ctx context.Context, functionName string, args map[string]any) (any, error) {
	return b.tool.call(ctx, functionName, args)
}

func (b *builtinBackend) Ping(context.Context) error { return nil }

func (b *builtinBackend) Close() error { return nil }
