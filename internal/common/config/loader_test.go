package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: prompt-switcher-test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "prompt-switcher-test", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "https://api.openai.com", cfg.OpenAI.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, 15000, cfg.Router.ClassifyTimeout)
	assert.Equal(t, "memory", cfg.Settings.Backend)
	assert.Equal(t, "configs/default_prompts.json", cfg.Templates.DefaultsPath)

	wcfg := GetWorkerConfig(cfg, WorkerOptimizePrompt)
	assert.True(t, wcfg.Enabled)
	assert.Equal(t, 5, wcfg.MaxJobsActive)
	assert.Equal(t, 30000, wcfg.Timeout)
}

func TestLoadFromFile_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
openai:
  model: gpt-4o-mini
database:
  redis:
    address: ${TEST_REDIS_ADDR}
settings:
  backend: redis
`)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("TEST_REDIS_ADDR", "cache:6380")
	t.Setenv("ROUTER_CLASSIFY_TIMEOUT", "2500")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Model)
	assert.Equal(t, "cache:6380", cfg.Database.Redis.Address)
	assert.Equal(t, 2500*time.Millisecond, GetDuration(cfg.Router.ClassifyTimeout))
}

func TestLoadFromFile_WorkerSection(t *testing.T) {
	path := writeConfig(t, `
workers:
  list-agents:
    enabled: false
  optimize-prompt:
    enabled: true
    max_jobs_active: 20
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.False(t, IsWorkerEnabled(cfg, WorkerListAgents))
	assert.True(t, IsWorkerEnabled(cfg, WorkerOptimizePrompt))
	assert.Equal(t, 20, cfg.Workers[WorkerOptimizePrompt].MaxJobsActive)
	assert.Equal(t, 3, cfg.Workers[WorkerOptimizePrompt].MaxRetries)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "unknown settings backend",
			body:    "settings:\n  backend: etcd\n",
			wantErr: "settings.backend",
		},
		{
			name:    "postgres backend without user",
			body:    "settings:\n  backend: postgres\n",
			wantErr: "postgres",
		},
		{
			name:    "tracing without endpoint",
			body:    "tracing:\n  enabled: true\n",
			wantErr: "jaeger_endpoint",
		},
		{
			name:    "non-positive classify timeout",
			body:    "router:\n  classify_timeout: 0\n",
			wantErr: "classify_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DB_USER", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPostgresConfig_GetDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "ps", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ps sslmode=disable", p.GetDSN())
}
