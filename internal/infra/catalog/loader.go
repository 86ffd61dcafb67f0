package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"mcpscene/internal/domain"
)

// Format is the syntax of a catalog document.
type Format int

const (
	FormatYAML Format = iota
	// FormatJSON also accepts comments.
	FormatJSON
)

// FormatForPath picks the document format from a file extension.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	default:
		return FormatYAML
	}
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("catalog")}
}

// Tool names may contain dots, so viper uses a delimiter no name carries.
func newCatalogViper() *viper.Viper {
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetConfigType("json")
	v.SetDefault("autoTrigger", domain.DefaultAutoTrigger)
	v.SetDefault("maxToolsPerGeneration", domain.DefaultMaxToolsPerGeneration)
	v.SetDefault("timeoutMs", domain.DefaultOrchestrationTimeout.Milliseconds())
	v.SetDefault("confidenceThreshold", domain.DefaultConfidenceThreshold)
	v.SetDefault("enableCaching", domain.DefaultEnableCaching)
	v.SetDefault("debugMode", domain.DefaultDebugMode)
	return v
}

type rawCatalog struct {
	rawSettings `mapstructure:",squash"`
	Tools       map[string]rawTool `mapstructure:"tools"`
}

type rawSettings struct {
	AutoTrigger           bool    `mapstructure:"autoTrigger"`
	MaxToolsPerGeneration int     `mapstructure:"maxToolsPerGeneration"`
	TimeoutMs             int64   `mapstructure:"timeoutMs"`
	ConfidenceThreshold   float64 `mapstructure:"confidenceThreshold"`
	EnableCaching         bool    `mapstructure:"enableCaching"`
	DebugMode             bool    `mapstructure:"debugMode"`
}

type rawTool struct {
	Enabled      bool              `mapstructure:"enabled"`
	ServerURL    string            `mapstructure:"serverUrl"`
	Timeout      *int64            `mapstructure:"timeout"`
	MaxRetries   *int              `mapstructure:"maxRetries"`
	CacheTimeout *int64            `mapstructure:"cacheTimeout"`
	Priority     *float64          `mapstructure:"priority"`
	SceneTypes   []string          `mapstructure:"sceneTypes"`
	Description  string            `mapstructure:"description"`
	Headers      map[string]string `mapstructure:"headers"`
}

// Load reads, expands, validates and normalizes the catalog file at path.
func (l *Loader) Load(ctx context.Context, path string) (domain.Catalog, error) {
	if path == "" {
		return domain.Catalog{}, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read config: %w", err)
	}
	catalog, err := l.parse(data, FormatForPath(path), true, path)
	if err != nil {
		return domain.Catalog{}, err
	}
	return catalog, ctx.Err()
}

// Decode parses a JSON document submitted at runtime. Environment references
// are kept literal.
func (l *Loader) Decode(data []byte) (domain.Catalog, error) {
	c, err := l.parse(data, FormatJSON, false, "")
	if err != nil {
		return domain.Catalog{}, domain.Wrap(domain.CodeInvalidArgument, "catalog.Decode", err)
	}
	return c, nil
}

func (l *Loader) parse(data []byte, format Format, expand bool, path string) (domain.Catalog, error) {
	generic, missing, err := decodeGeneric(data, format, expand)
	if err != nil {
		return domain.Catalog{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config", zap.String("path", path), zap.Strings("missing", missing))
	}
	if generic == nil {
		generic = map[string]any{}
	}
	doc, err := json.Marshal(generic)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("encode config: %w", err)
	}
	if err := validateSchema(doc); err != nil {
		return domain.Catalog{}, err
	}

	v := newCatalogViper()
	if err := v.ReadConfig(bytes.NewReader(doc)); err != nil {
		return domain.Catalog{}, fmt.Errorf("parse config: %w", err)
	}
	var raw rawCatalog
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode config: %w", err)
	}
	return normalizeCatalog(raw)
}

func decodeGeneric(data []byte, format Format, expand bool) (any, []string, error) {
	var generic any
	if format == FormatJSON {
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&generic); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("parse config: %w", err)
		}
		if !expand {
			return generic, nil, nil
		}
		missing := make(map[string]struct{})
		generic = expandValue(generic, missing)
		return generic, sortedNames(missing), nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	if root.Kind == 0 {
		return nil, nil, nil
	}
	var missing []string
	if expand {
		missing = expandEnv(&root)
	}
	if err := root.Decode(&generic); err != nil {
		return nil, nil, fmt.Errorf("parse config: %w", err)
	}
	return generic, missing, nil
}

func normalizeCatalog(raw rawCatalog) (domain.Catalog, error) {
	settings := SettingsDocument(raw.rawSettings).Settings()
	tools := make(map[string]domain.ToolConfig, len(raw.Tools))

	names := make([]string, 0, len(raw.Tools))
	for name := range raw.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	var validationErrors []string
	for _, name := range names {
		cfg := normalizeTool(raw.Tools[name])
		if errs := validateTool(name, cfg); len(errs) > 0 {
			validationErrors = append(validationErrors, errs...)
			continue
		}
		tools[name] = cfg
	}
	if len(validationErrors) > 0 {
		return domain.Catalog{}, domain.E(domain.CodeInvalidArgument, "catalog.Load",
			strings.Join(validationErrors, "; "), domain.ErrInvalidConfig)
	}
	return domain.Catalog{Settings: settings, Tools: tools}, nil
}

func normalizeTool(raw rawTool) domain.ToolConfig {
	cfg := domain.ToolConfig{
		Enabled:      raw.Enabled,
		ServerURL:    strings.TrimSpace(raw.ServerURL),
		Timeout:      domain.DefaultToolTimeout,
		MaxRetries:   domain.DefaultToolMaxRetries,
		CacheTimeout: domain.DefaultToolCacheTimeout,
		Priority:     domain.DefaultToolPriority,
		SceneTypes:   raw.SceneTypes,
		Description:  raw.Description,
		Headers:      raw.Headers,
	}
	if raw.Timeout != nil {
		cfg.Timeout = time.Duration(*raw.Timeout) * time.Millisecond
	}
	if raw.MaxRetries != nil {
		cfg.MaxRetries = *raw.MaxRetries
	}
	if raw.CacheTimeout != nil {
		cfg.CacheTimeout = time.Duration(*raw.CacheTimeout) * time.Millisecond
	}
	if raw.Priority != nil {
		cfg.Priority = *raw.Priority
	}
	if cfg.SceneTypes == nil {
		cfg.SceneTypes = []string{}
	}
	return cfg
}

func validateTool(name string, cfg domain.ToolConfig) []string {
	var errs []string
	if strings.TrimSpace(name) == "" {
		errs = append(errs, "tools: name is required")
	}
	if cfg.IsBuiltin() {
		return errs
	}
	if cfg.ServerURL == "" {
		if cfg.Enabled {
			errs = append(errs, fmt.Sprintf("tools.%s: serverUrl is required when enabled", name))
		}
		return errs
	}
	parsed, err := url.Parse(cfg.ServerURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("tools.%s: serverUrl is invalid: %v", name, err))
	case parsed.Scheme != "http" && parsed.Scheme != "https":
		errs = append(errs, fmt.Sprintf("tools.%s: serverUrl must use http or https", name))
	case parsed.Host == "":
		errs = append(errs, fmt.Sprintf("tools.%s: serverUrl must include a host", name))
	}
	if cfg.Enabled && cfg.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("tools.%s: timeout must be > 0", name))
	}
	return errs
}

// FileSource reads the catalog from a file on every Load.
type FileSource struct {
	loader *Loader
	path   string
}

func NewFileSource(loader *Loader, path string) *FileSource {
	return &FileSource{loader: loader, path: path}
}

func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Load(ctx context.Context) (domain.Catalog, error) {
	return s.loader.Load(ctx, s.path)
}
