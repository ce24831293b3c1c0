package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTemplates = `{
  "version": "1.0.0",
  "prompts": [
    {"id": 1, "name": "General", "description": "anything", "prompt": "General: [RAW_REQUEST]"},
    {"id": 2, "name": "Explain", "description": "explains code", "prompt": "Explain: [RAW_REQUEST] please"},
    {"id": "sql", "name": "SQL Helper", "description": "queries", "prompt": "SQL: [RAW_REQUEST]"}
  ]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// writeTestConfig writes a memory-backed config whose defaults point at a
// temp template file.
func writeTestConfig(t *testing.T, baseURL, apiKey string) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	templates := writeFile(t, dir, "prompts.json", testTemplates)

	if baseURL == "" {
		baseURL = "http://127.0.0.1:1"
	}
	body := fmt.Sprintf(`
logging:
  level: error
  format: console
  output: stderr
openai:
  base_url: %s
  api_key: "%s"
  timeout: 2000
router:
  classify_timeout: 2000
templates:
  defaults_path: %s
settings:
  backend: memory
`, baseURL, apiKey, templates)
	return writeFile(t, dir, "config.yaml", body)
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseAgentID(t *testing.T) {
	id := parseAgentID("42")
	assert.True(t, id.IsNumeric())
	assert.True(t, id.Equal(prompts.IntID(42)))

	id = parseAgentID("sql")
	assert.False(t, id.IsNumeric())
	assert.Equal(t, "sql", id.String())

	id = parseAgentID("")
	assert.Equal(t, "", id.String())
}

func TestValidateCmd(t *testing.T) {
	dir := t.TempDir()

	out, err := runCmd(t, "validate", writeFile(t, dir, "ok.json", testTemplates))
	require.NoError(t, err)
	assert.Contains(t, out, "3 templates ok")

	_, err = runCmd(t, "validate", writeFile(t, dir, "dup.json", `{"prompts": [
		{"id": 1, "name": "a", "description": "a", "prompt": "a"},
		{"id": 1, "name": "b", "description": "b", "prompt": "b"}
	]}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, prompts.ErrValidation))

	_, err = runCmd(t, "validate", filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestValidateCmd_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "prompts.yaml", `
prompts:
  - id: 1
    name: General
    description: anything
    prompt: "General: [RAW_REQUEST]"
`)
	out, err := runCmd(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 templates ok")
}

func TestAgentsCmd(t *testing.T) {
	cfg := writeTestConfig(t, "", "")

	out, err := runCmd(t, "agents", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "SQL Helper")

	out, err = runCmd(t, "agents", "--json", "--config", cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"agents": [
		{"id": 1, "name": "General", "description": "anything"},
		{"id": 2, "name": "Explain", "description": "explains code"},
		{"id": "sql", "name": "SQL Helper", "description": "queries"}
	]}`, out)
}

func TestOptimizeCmd_Manual(t *testing.T) {
	cfg := writeTestConfig(t, "", "")

	out, err := runCmd(t, "optimize", "--config", cfg, "--agent", "2", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "Explain: hello world please\n", out)

	out, err = runCmd(t, "optimize", "--config", cfg, "--agent", "sql", "--json", "select 1")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"optimized_text": "SQL: select 1",
		"agent": {"id": "sql", "name": "SQL Helper", "description": "queries"},
		"mode": "manual",
		"fallback": false
	}`, out)
}

func TestOptimizeCmd_Errors(t *testing.T) {
	cfg := writeTestConfig(t, "", "")

	_, err := runCmd(t, "optimize", "--config", cfg, "--agent", "99", "hello")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnknownTemplateID, apperrors.FromError(err).Code)

	// automatic routing needs an API key
	_, err = runCmd(t, "optimize", "--config", cfg, "hello")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotConfigured, apperrors.FromError(err).Code)

	_, err = runCmd(t, "optimize", "--config", cfg)
	require.Error(t, err)
}

func TestOptimizeCmd_BlankText(t *testing.T) {
	cfg := writeTestConfig(t, "", "")

	out, err := runCmd(t, "optimize", "--config", cfg, "--json", "   ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"optimized_text": "", "mode": "auto", "fallback": false}`, out)

	out, err = runCmd(t, "optimize", "--config", cfg, "--agent", "2", "  ", " ")
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestOptimizeCmd_Auto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key-123", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"id\":\"sql\"}"}}]}`)
	}))
	defer srv.Close()

	cfg := writeTestConfig(t, srv.URL, "sk-test-key-123")

	out, err := runCmd(t, "optimize", "--config", cfg, "--json", "why is my join slow")
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"optimized_text": "SQL: why is my join slow",
		"agent": {"id": "sql", "name": "SQL Helper", "description": "queries"},
		"mode": "auto",
		"fallback": false
	}`, out)
}

func TestOptimizeCmd_AutoFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := writeTestConfig(t, srv.URL, "sk-test-key-123")

	out, err := runCmd(t, "optimize", "--config", cfg, "--json", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, `"fallback": true`)
	assert.Contains(t, out, `"optimized_text": "General: anything"`)
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	}, 5, time.Millisecond, logger.NewTestLogger(t), "test dependency")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, 2, time.Millisecond, logger.NewTestLogger(t), "test dependency")
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Contains(t, err.Error(), "test dependency failed after 2 attempts")
}
