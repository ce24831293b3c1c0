// Package settings persists the user-editable configuration: the API key,
// the model and the raw prompt records.
package settings

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"prompt-switcher/internal/common/config"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	DefaultRedisKey = "prompt-switcher:settings"
)

// Settings holds prompts as raw records; they are validated when the
// template store is built, not when they are loaded.
type Settings struct {
	APIKey  string `json:"apiKey"`
	Model   string `json:"model"`
	Prompts []any  `json:"prompts"`
}

// Store is the persistence boundary. Load on an empty store returns zero
// Settings and no error.
type Store interface {
	Load(ctx context.Context) (*Settings, error)
	Save(ctx context.Context, s *Settings) error
	Clear(ctx context.Context) error
}

// Configured reports whether auto mode has a credential to work with.
func (s *Settings) Configured() bool {
	return s != nil && strings.TrimSpace(s.APIKey) != ""
}

// Masked returns a copy safe to show to a client.
func (s *Settings) Masked() *Settings {
	if s == nil {
		return &Settings{}
	}
	out := s.clone()
	out.APIKey = MaskAPIKey(s.APIKey)
	return out
}

// MaskAPIKey keeps the prefix and the last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:3] + strings.Repeat("*", len(key)-7) + key[len(key)-4:]
}

func (s *Settings) clone() *Settings {
	if s == nil {
		return &Settings{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	out, err := decode(data)
	if err != nil {
		cp := *s
		return &cp
	}
	return out
}

// decode keeps numbers as json.Number so prompt ids survive untouched.
func decode(data []byte) (*Settings, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var s Settings
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return &s, nil
}

// NewStore picks a backend from config. The redis and postgres handles are
// only required by their own backend.
func NewStore(cfg config.SettingsConfig, rdb redis.Cmdable, db *sql.DB) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("settings backend %q requires a redis client", cfg.Backend)
		}
		return NewRedisStore(rdb, cfg.Key), nil
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("settings backend %q requires a postgres connection", cfg.Backend)
		}
		return NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}
