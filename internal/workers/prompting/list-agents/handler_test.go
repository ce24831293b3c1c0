package listagents

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"prompt-switcher/internal/common/config"
	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/settings"
	"prompt-switcher/internal/switcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listerFunc func(ctx context.Context) ([]prompts.Metadata, error)

func (f listerFunc) ListAgents(ctx context.Context) ([]prompts.Metadata, error) { return f(ctx) }

func createTestHandler(t *testing.T, lister Lister) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, lister, logger.NewTestLogger(t))
}

func TestHandler_Execute_ListsTemplatesInOrder(t *testing.T) {
	svc := switcher.New(settings.NewMemoryStore(), switcher.Defaults{Prompts: []any{
		map[string]any{"id": 3, "name": "Bug Hunter", "description": "finds bugs", "prompt": "[RAW_REQUEST]"},
		map[string]any{"id": "css", "name": "CSS Fixer", "description": "styles", "prompt": "[RAW_REQUEST]"},
	}}, logger.NewTestLogger(t), switcher.Options{})
	require.NoError(t, svc.Reload(context.Background()))

	output, err := createTestHandler(t, svc).Execute(context.Background())
	require.NoError(t, err)

	require.Len(t, output.Agents, 2)
	assert.Equal(t, 2, output.AgentCount)

	data, err := json.Marshal(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"agents": [
			{"id": 3, "name": "Bug Hunter", "description": "finds bugs"},
			{"id": "css", "name": "CSS Fixer", "description": "styles"}
		],
		"agentCount": 2
	}`, string(data))
}

func TestHandler_Execute_NotLoaded(t *testing.T) {
	svc := switcher.New(settings.NewMemoryStore(), switcher.Defaults{}, nil, switcher.Options{})

	_, err := createTestHandler(t, svc).Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotConfigured, apperrors.FromError(err).Code)
}

func TestHandler_Execute_EmptyListIsNotNull(t *testing.T) {
	handler := createTestHandler(t, listerFunc(func(context.Context) ([]prompts.Metadata, error) {
		return nil, nil
	}))

	output, err := handler.Execute(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(output)
	require.NoError(t, err)
	assert.JSONEq(t, `{"agents": [], "agentCount": 0}`, string(data))
}

func TestHandler_Execute_PassesThroughErrors(t *testing.T) {
	boom := errors.New("boom")
	handler := createTestHandler(t, listerFunc(func(context.Context) ([]prompts.Metadata, error) {
		return nil, boom
	}))

	_, err := handler.Execute(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, LoadConfig(config.WorkerConfig{Timeout: 500}).Timeout)
	assert.Equal(t, 10*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
}
