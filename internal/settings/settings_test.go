package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"prompt-switcher/internal/common/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func sampleSettings() *Settings {
	return &Settings{
		APIKey: "sk-test-12345678",
		Model:  "gpt-4o",
		Prompts: []any{
			map[string]any{"id": 1, "name": "Fix CSS", "description": "d", "prompt": "Do: [RAW_REQUEST]"},
		},
	}
}

func firstPromptID(t *testing.T, s *Settings) any {
	t.Helper()
	require.Len(t, s.Prompts, 1)
	rec, ok := s.Prompts[0].(map[string]any)
	require.True(t, ok)
	return rec["id"]
}

// storeContract runs the behavior every backend must share.
func storeContract(t *testing.T, store Store) {
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, empty.Configured())
	assert.Empty(t, empty.Prompts)

	require.NoError(t, store.Save(ctx, sampleSettings()))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-12345678", loaded.APIKey)
	assert.Equal(t, "gpt-4o", loaded.Model)
	assert.Equal(t, json.Number("1"), firstPromptID(t, loaded))

	require.NoError(t, store.Clear(ctx))
	cleared, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Settings{}, cleared)
}

// ==========================
// Settings
// ==========================

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"sk-abc", "******"},
		{"sk-test-12345678", "sk-*********5678"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskAPIKey(tt.in))
	}
}

func TestSettings_MaskedLeavesOriginal(t *testing.T) {
	s := sampleSettings()
	masked := s.Masked()

	assert.Equal(t, "sk-*********5678", masked.APIKey)
	assert.Equal(t, "sk-test-12345678", s.APIKey)
	assert.Len(t, masked.Prompts, 1)
	assert.Equal(t, &Settings{}, (*Settings)(nil).Masked())
}

func TestNewStore(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	rdb, _ := redismock.NewClientMock()

	tests := []struct {
		name    string
		backend string
		rdb     redis.Cmdable
		db      bool
		want    any
		wantErr string
	}{
		{name: "default", backend: "", want: &MemoryStore{}},
		{name: "memory", backend: "memory", want: &MemoryStore{}},
		{name: "redis", backend: "redis", rdb: rdb, want: &RedisStore{}},
		{name: "redis without client", backend: "redis", wantErr: "requires a redis client"},
		{name: "postgres", backend: "Postgres", db: true, want: &PostgresStore{}},
		{name: "postgres without db", backend: "postgres", wantErr: "requires a postgres connection"},
		{name: "unknown", backend: "etcd", wantErr: "unknown settings backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sqlDB = db
			if !tt.db {
				sqlDB = nil
			}
			store, err := NewStore(config.SettingsConfig{Backend: tt.backend}, tt.rdb, sqlDB)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, store)
		})
	}
}

// ==========================
// Memory backend
// ==========================

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	s := sampleSettings()
	require.NoError(t, store.Save(context.Background(), s))

	s.Prompts[0].(map[string]any)["name"] = "mutated"

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fix CSS", loaded.Prompts[0].(map[string]any)["name"])
}

// ==========================
// Redis backend
// ==========================

func TestRedisStore(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, "")
	require.NoError(t, store.Save(context.Background(), sampleSettings()))
	assert.True(t, mr.Exists(DefaultRedisKey))
	assert.Zero(t, mr.TTL(DefaultRedisKey))
	require.NoError(t, store.Clear(context.Background()))

	storeContract(t, store)
}

func TestRedisStore_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, "custom:key")
	ctx := context.Background()

	mock.ExpectGet("custom:key").SetErr(errors.New("connection refused"))
	_, err := store.Load(ctx)
	assert.ErrorContains(t, err, "connection refused")

	mock.ExpectGet("custom:key").SetVal("{broken")
	_, err = store.Load(ctx)
	assert.ErrorContains(t, err, "decode settings")

	mock.ExpectDel("custom:key").SetErr(errors.New("readonly replica"))
	assert.ErrorContains(t, store.Clear(ctx), "readonly replica")

	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Postgres backend
// ==========================

func TestPostgresStore_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := NewPostgresStore(db)

	mock.ExpectQuery(`SELECT payload FROM prompt_switcher_settings WHERE id = \$1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).
			AddRow([]byte(`{"apiKey":"sk-db","model":"gpt-4o","prompts":[{"id":7,"name":"n","description":"d","prompt":"[RAW_REQUEST]"}]}`)))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-db", loaded.APIKey)
	assert.Equal(t, json.Number("7"), firstPromptID(t, loaded))

	mock.ExpectQuery(`SELECT payload FROM prompt_switcher_settings`).
		WithArgs(1).
		WillReturnError(errors.New("relation does not exist"))
	_, err = store.Load(context.Background())
	assert.ErrorContains(t, err, "query settings")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(`SELECT payload FROM prompt_switcher_settings`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	loaded, err := NewPostgresStore(db).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Settings{}, loaded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveClearMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := NewPostgresStore(db)
	ctx := context.Background()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS prompt_switcher_settings`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO prompt_switcher_settings .* ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM prompt_switcher_settings WHERE id = \$1`).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Save(ctx, sampleSettings()))
	require.NoError(t, store.Clear(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(`INSERT INTO prompt_switcher_settings`).
		WillReturnError(errors.New("disk full"))

	err = NewPostgresStore(db).Save(context.Background(), sampleSettings())
	assert.ErrorContains(t, err, "save settings")
	assert.NoError(t, mock.ExpectationsWereMet())
}
