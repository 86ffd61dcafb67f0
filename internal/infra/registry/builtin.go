package registry

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"mcpscene/internal/domain"
)

const (
	BuiltinDatetime   = "datetime-service"
	BuiltinSystemInfo = "system-info"
)

type builtinHandler func(ctx context.Context, args map[string]any) (any, error)

type builtinFunction struct {
	descriptor domain.ToolDescriptor
	schema     *jsonschema.Resolved
	handler    builtinHandler
}

// builtinTool is an in-process tool. It has no connection and is always healthy.
type builtinTool struct {
	name      string
	config    domain.ToolConfig
	functions map[string]builtinFunction
	order     []string
}

func (t *builtinTool) descriptors() []domain.ToolDescriptor {
	out := make([]domain.ToolDescriptor, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.functions[name].descriptor)
	}
	return out
}

func (t *builtinTool) call(ctx context.Context, functionName string, args map[string]any) (any, error) {
	fn, ok := t.functions[functionName]
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "registry.builtin", fmt.Sprintf("%s has no function %q", t.name, functionName), domain.ErrFunctionNotFound)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := fn.schema.Validate(args); err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "registry.builtin", fmt.Sprintf("invalid arguments for %s: %v", functionName, err), err)
	}
	return fn.handler(ctx, args)
}

func (t *builtinTool) add(name, description string, schema *jsonschema.Schema, handler builtinHandler) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve schema for %s: %w", name, err)
	}
	if t.functions == nil {
		t.functions = make(map[string]builtinFunction)
	}
	t.functions[name] = builtinFunction{
		descriptor: domain.ToolDescriptor{Name: name, Description: description, InputSchema: schema},
		schema:     resolved,
		handler:    handler,
	}
	t.order = append(t.order, name)
	return nil
}

func builtinConfig(description string, sceneTypes ...string) domain.ToolConfig {
	return domain.ToolConfig{
		Enabled:      true,
		ServerURL:    domain.BuiltinServerURL,
		Timeout:      domain.DefaultToolTimeout,
		MaxRetries:   0,
		CacheTimeout: 0,
		Priority:     domain.DefaultToolPriority,
		SceneTypes:   sceneTypes,
		Description:  description,
	}
}

// newBuiltinTools returns the in-process tool set keyed by name.
func newBuiltinTools(now func() time.Time) (map[string]*builtinTool, error) {
	datetime := &builtinTool{
		name:   BuiltinDatetime,
		config: builtinConfig("获取当前日期时间", string(domain.SceneTime)),
	}
	err := datetime.add(BuiltinDatetime, "获取当前日期时间", &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"timezone": {Type: "string", Description: "IANA time zone name"},
		},
	}, func(_ context.Context, args map[string]any) (any, error) {
		current := now()
		if tz, _ := args["timezone"].(string); strings.TrimSpace(tz) != "" {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return nil, domain.E(domain.CodeInvalidArgument, "registry.datetime", fmt.Sprintf("unknown timezone %q: %v", tz, err), err)
			}
			current = current.In(loc)
		}
		zone, _ := current.Zone()
		if name := current.Location().String(); name != "Local" {
			zone = name
		}
		return map[string]any{
			"currentTime": current.Format(time.RFC3339),
			"timestamp":   current.UnixMilli(),
			"timezone":    zone,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	system := &builtinTool{
		name:   BuiltinSystemInfo,
		config: builtinConfig("获取运行环境信息", "*"),
	}
	err = system.add(BuiltinSystemInfo, "获取运行环境信息", &jsonschema.Schema{
		Type:       "object",
		Properties: map[string]*jsonschema.Schema{},
	}, func(context.Context, map[string]any) (any, error) {
		hostname, _ := os.Hostname()
		return map[string]any{
			"hostname": hostname,
			"os":       runtime.GOOS,
			"arch":     runtime.GOARCH,
			"cpus":     runtime.NumCPU(),
			"language": systemLanguage(),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	return map[string]*builtinTool{
		datetime.name: datetime,
		system.name:   system,
	}, nil
}

func systemLanguage() string {
	for _, key := range []string{"LC_ALL", "LANG"} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		if idx := strings.IndexByte(value, '.'); idx > 0 {
			value = value[:idx]
		}
		return strings.ReplaceAll(value, "_", "-")
	}
	return "en-US"
}
