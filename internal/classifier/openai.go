// Package classifier implements router.Classifier against an
// OpenAI-compatible chat completions API.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	httpclient "prompt-switcher/internal/common/http"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/router"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o"
	DefaultTimeout = 30 * time.Second
)

var (
	ErrClassificationFailed  = errors.New("CLASSIFICATION_FAILED")
	ErrClassificationTimeout = errors.New("CLASSIFICATION_TIMEOUT")
	ErrVerificationFailed    = errors.New("MODEL_VERIFICATION_FAILED")
	ErrMissingAPIKey         = errors.New("missing API key")
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAI is safe for concurrent use.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *httpclient.Client
	logger  logger.Logger
}

func NewOpenAI(cfg Config, log logger.Logger) *OpenAI {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &OpenAI{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   model,
		client:  httpclient.NewClient(timeout),
		logger:  log.WithFields(map[string]interface{}{"component": "classifier", "model": model}),
	}
}

func (o *OpenAI) Model() string {
	return o.model
}

// CacheKey scopes cached routing decisions to the model that made them.
func (o *OpenAI) CacheKey() string {
	return o.baseURL + "|" + o.model
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Classify asks the model which template fits req.RawRequest. Template
// bodies never leave the process; only req.Metadata is sent.
func (o *OpenAI) Classify(ctx context.Context, req router.Request) (prompts.ID, error) {
	if o.apiKey == "" {
		return prompts.ID{}, fmt.Errorf("%w: %w", ErrClassificationFailed, ErrMissingAPIKey)
	}

	metadata, err := json.MarshalIndent(req.Metadata, "", "  ")
	if err != nil {
		return prompts.ID{}, fmt.Errorf("%w: marshal metadata: %v", ErrClassificationFailed, err)
	}
	userContent := fmt.Sprintf("AVAILABLE PROMPTS:\n%s\n\nRAW REQUEST: %s", metadata, req.RawRequest)

	systemInstruction := req.SystemInstruction
	if systemInstruction == "" {
		systemInstruction = router.DefaultSystemInstruction
	}

	content, err := o.complete(ctx, chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemInstruction},
			{Role: "user", Content: userContent},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}, ErrClassificationFailed)
	if err != nil {
		return prompts.ID{}, err
	}

	id, err := parseReply(content)
	if err != nil {
		return prompts.ID{}, err
	}

	o.logger.Debug("classified request", map[string]interface{}{
		"templateId": id.String(),
		"candidates": len(req.Metadata),
	})
	return id, nil
}

// Ping sends a minimal completion to confirm the key and model are usable.
func (o *OpenAI) Ping(ctx context.Context) error {
	if o.apiKey == "" {
		return fmt.Errorf("%w: %w", ErrVerificationFailed, ErrMissingAPIKey)
	}
	_, err := o.complete(ctx, chatRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}, ErrVerificationFailed)
	return err
}

// complete posts body and returns the first choice's content. Failures wrap
// failErr, or ErrClassificationTimeout when a deadline expired.
func (o *OpenAI) complete(ctx context.Context, body chatRequest, failErr error) (string, error) {
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}

	resp, err := o.client.PostJSON(ctx, o.baseURL+"/v1/chat/completions", headers, body)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %w", ErrClassificationTimeout, err)
		}
		return "", fmt.Errorf("%w: %w", failErr, err)
	}

	if !resp.OK() {
		return "", fmt.Errorf("%w: openai API returned %d: %s", failErr, resp.StatusCode, errorMessage(resp.Body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", failErr, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty response from openai", failErr)
	}
	return parsed.Choices[0].Message.Content, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func errorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
