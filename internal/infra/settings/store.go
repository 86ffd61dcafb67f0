// Package settings persists runtime changes to the tool catalog in a bbolt
// file and overlays them on a base catalog source.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
	"mcpscene/internal/infra/catalog"
)

const (
	catalogBucketName = "catalog"
	settingsKey       = "settings"
	toolsKey          = "tools"
	updatedAtKey      = "__updated_at"
	versionKey        = "__version"
	schemaVersion     = 1
)

type Options struct {
	Path string
	// Base supplies the catalog that stored sections override. Nil means the
	// built-in default set.
	Base   domain.CatalogSource
	Logger *zap.Logger
	Now    func() time.Time
}

// Store is a domain.CatalogSource that overlays persisted settings and tool
// configs on a base source. Each section replaces the base section wholesale.
type Store struct {
	mu     sync.RWMutex
	db     *bolt.DB
	path   string
	closed bool

	base   domain.CatalogSource
	logger *zap.Logger
	now    func() time.Time
}

func Open(opts Options) (*Store, error) {
	trimmed := strings.TrimSpace(opts.Path)
	if trimmed == "" {
		return nil, fmt.Errorf("settings path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure settings dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		db:     db,
		path:   trimmed,
		base:   opts.Base,
		logger: logger.Named("settings"),
		now:    now,
	}, nil
}

func ensureSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(catalogBucketName))
		if err != nil {
			return fmt.Errorf("create catalog bucket: %w", err)
		}
		raw := bucket.Get([]byte(versionKey))
		if raw == nil {
			return bucket.Put([]byte(versionKey), []byte(fmt.Sprint(schemaVersion)))
		}
		if string(raw) != fmt.Sprint(schemaVersion) {
			return fmt.Errorf("unsupported settings schema version %s", raw)
		}
		return nil
	})
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Load returns the base catalog with stored sections applied. A failing base
// is replaced by the default set when the store holds an override; otherwise
// its error is returned.
func (s *Store) Load(ctx context.Context) (domain.Catalog, error) {
	stored, err := s.sections()
	if err != nil {
		return domain.Catalog{}, err
	}

	base, baseErr := s.loadBase(ctx)
	if baseErr != nil {
		if len(stored) == 0 {
			return domain.Catalog{}, baseErr
		}
		s.logger.Warn("base catalog unavailable, overlaying defaults", zap.Error(baseErr))
		base = domain.DefaultCatalog()
	}

	if raw, ok := stored[settingsKey]; ok {
		var doc catalog.SettingsDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return domain.Catalog{}, fmt.Errorf("decode stored settings: %w", err)
		}
		base.Settings = doc.Settings()
	}
	if raw, ok := stored[toolsKey]; ok {
		var docs map[string]catalog.ToolDocument
		if err := json.Unmarshal(raw, &docs); err != nil {
			return domain.Catalog{}, fmt.Errorf("decode stored tools: %w", err)
		}
		base.Tools = make(map[string]domain.ToolConfig, len(docs))
		for name, doc := range docs {
			base.Tools[name] = doc.Config()
		}
	}
	return base, nil
}

func (s *Store) loadBase(ctx context.Context) (domain.Catalog, error) {
	if s.base == nil {
		return domain.DefaultCatalog(), nil
	}
	return s.base.Load(ctx)
}

// SaveSettings persists engine settings.
func (s *Store) SaveSettings(settings domain.EngineSettings) error {
	raw, err := json.Marshal(catalog.EncodeSettings(settings))
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.put(map[string][]byte{settingsKey: raw})
}

// SaveTools persists the complete tool config set.
func (s *Store) SaveTools(tools map[string]domain.ToolConfig) error {
	docs := make(map[string]catalog.ToolDocument, len(tools))
	for name, cfg := range tools {
		docs[name] = catalog.EncodeTool(cfg)
	}
	raw, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}
	return s.put(map[string][]byte{toolsKey: raw})
}

// Reset drops every stored section so Load returns the base catalog again.
func (s *Store) Reset() error {
	return s.update(func(bucket *bolt.Bucket) error {
		for _, key := range []string{settingsKey, toolsKey, updatedAtKey} {
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		return nil
	})
}

// UpdatedAt reports when a section was last written.
func (s *Store) UpdatedAt() (time.Time, bool, error) {
	var (
		at    time.Time
		found bool
	)
	err := s.view(func(bucket *bolt.Bucket) error {
		raw := bucket.Get([]byte(updatedAtKey))
		if len(raw) == 0 {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, string(raw))
		if err != nil {
			return fmt.Errorf("decode updated at: %w", err)
		}
		at, found = parsed, true
		return nil
	})
	return at, found, err
}

func (s *Store) put(values map[string][]byte) error {
	return s.update(func(bucket *bolt.Bucket) error {
		for key, value := range values {
			if err := bucket.Put([]byte(key), value); err != nil {
				return fmt.Errorf("write %s: %w", key, err)
			}
		}
		stamp := s.now().UTC().Format(time.RFC3339Nano)
		return bucket.Put([]byte(updatedAtKey), []byte(stamp))
	})
}

func (s *Store) sections() (map[string][]byte, error) {
	out := make(map[string][]byte, 2)
	err := s.view(func(bucket *bolt.Bucket) error {
		for _, key := range []string{settingsKey, toolsKey} {
			if value := bucket.Get([]byte(key)); value != nil {
				out[key] = append([]byte(nil), value...)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) view(fn func(*bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSettingsStoreDown
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(catalogBucketName)))
	})
}

func (s *Store) update(fn func(*bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrSettingsStoreDown
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket([]byte(catalogBucketName)))
	})
}
