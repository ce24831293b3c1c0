// Package switcher is the caller-facing prompt switcher: it owns the current
// template store and classifier, rebuilds them when settings change, and
// answers ListAgents and Optimize for every front end.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"prompt-switcher/internal/classifier"
	apperrors "prompt-switcher/internal/common/errors"
	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/common/metrics"
	"prompt-switcher/internal/common/observability"
	"prompt-switcher/internal/prompts"
	"prompt-switcher/internal/router"
	"prompt-switcher/internal/settings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const apiKeyPrefix = "sk-"

// ModelClient classifies requests and can verify its own credential.
type ModelClient interface {
	router.Classifier
	Ping(ctx context.Context) error
}

// ClientFactory builds a ModelClient for a credential and model.
type ClientFactory func(cfg classifier.Config) ModelClient

// Defaults seed the service when the settings store has nothing saved.
type Defaults struct {
	APIKey  string
	Model   string
	Prompts []any
}

type Options struct {
	BaseURL       string
	ClientTimeout time.Duration
	Router        *router.Router
	Observability *observability.Observability
	NewClient     ClientFactory
}

// OptimizeResult is what callers get back from Optimize. Agent is nil when
// blank text short-circuited the routing.
type OptimizeResult struct {
	OptimizedText string            `json:"optimized_text"`
	Agent         *prompts.Metadata `json:"agent,omitempty"`
	Mode          router.Mode       `json:"mode"`
	Fallback      bool              `json:"fallback"`
	Result        *router.Result    `json:"-"`
}

// Status summarizes the active snapshot.
type Status struct {
	Ready       bool   `json:"ready"`
	Configured  bool   `json:"configured"`
	Model       string `json:"model,omitempty"`
	Templates   int    `json:"templates"`
	Fingerprint string `json:"fingerprint,omitempty"`
	LoadedAt    string `json:"loadedAt,omitempty"`
}

type snapshot struct {
	store    *prompts.Store
	client   ModelClient
	model    string
	loadedAt time.Time
}

type Service struct {
	settings  settings.Store
	defaults  Defaults
	router    *router.Router
	obs       *observability.Observability
	newClient ClientFactory
	logger    logger.Logger

	current atomic.Pointer[snapshot]
	// mu serializes writers; readers only touch current.
	mu sync.Mutex
}

func New(store settings.Store, defaults Defaults, log logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"component": "switcher"})

	r := opts.Router
	if r == nil {
		r = router.New(router.WithLogger(log))
	}

	newClient := opts.NewClient
	if newClient == nil {
		baseURL, timeout := opts.BaseURL, opts.ClientTimeout
		newClient = func(cfg classifier.Config) ModelClient {
			if cfg.BaseURL == "" {
				cfg.BaseURL = baseURL
			}
			if cfg.Timeout == 0 {
				cfg.Timeout = timeout
			}
			return classifier.NewOpenAI(cfg, log)
		}
	}

	return &Service{
		settings:  store,
		defaults:  defaults,
		router:    r,
		obs:       opts.Observability,
		newClient: newClient,
		logger:    log,
	}
}

// Reload rebuilds the snapshot from the settings store. When nothing is
// stored the defaults are used and written back. On failure the previous
// snapshot stays active.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

func (s *Service) reloadLocked(ctx context.Context) error {
	stored, err := s.settings.Load(ctx)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues("error").Inc()
		return apperrors.NewSettingsStoreFailedError(err)
	}

	apiKey := firstNonEmpty(stored.APIKey, s.defaults.APIKey)
	model := firstNonEmpty(stored.Model, s.defaults.Model, classifier.DefaultModel)
	records := stored.Prompts
	seeded := false
	if len(records) == 0 {
		records = s.defaults.Prompts
		seeded = len(records) > 0
	}

	store, err := prompts.Build(records)
	if err != nil {
		metrics.SnapshotReloads.WithLabelValues("invalid").Inc()
		s.logger.Error("template list rejected, keeping previous snapshot", map[string]interface{}{"error": err})
		return apperrors.NewTemplateValidationFailedError(err)
	}

	if seeded {
		seed := &settings.Settings{APIKey: stored.APIKey, Model: stored.Model, Prompts: records}
		if err := s.settings.Save(ctx, seed); err != nil {
			s.logger.Warn("failed to persist default templates", map[string]interface{}{"error": err})
		}
	}

	var client ModelClient
	if strings.TrimSpace(apiKey) != "" {
		client = s.newClient(classifier.Config{APIKey: apiKey, Model: model})
	}

	s.current.Store(&snapshot{store: store, client: client, model: model, loadedAt: time.Now().UTC()})
	metrics.SnapshotReloads.WithLabelValues("success").Inc()
	metrics.TemplateStoreSize.Set(float64(store.Len()))

	s.logger.Info("prompt templates loaded", map[string]interface{}{
		"templates":   store.Len(),
		"fingerprint": store.Fingerprint(),
		"model":       model,
		"configured":  client != nil,
		"seeded":      seeded,
	})
	return nil
}

func (s *Service) Status() Status {
	snap := s.current.Load()
	if snap == nil {
		return Status{}
	}
	return Status{
		Ready:       true,
		Configured:  snap.client != nil,
		Model:       snap.model,
		Templates:   snap.store.Len(),
		Fingerprint: snap.store.Fingerprint(),
		LoadedAt:    snap.loadedAt.Format(time.RFC3339),
	}
}

// ListAgents returns template metadata in configuration order.
func (s *Service) ListAgents(ctx context.Context) ([]prompts.Metadata, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.NewNotConfiguredError("no prompt templates loaded")
	}
	return snap.store.Metadata(), nil
}

// Optimize wraps text into the template named by agentID, or into the one
// the classifier picks when agentID is nil. Blank text is a no-op in either
// mode and returns an empty result.
func (s *Service) Optimize(ctx context.Context, text string, agentID *prompts.ID) (*OptimizeResult, error) {
	mode := router.ModeAuto
	if agentID != nil {
		mode = router.ModeManual
	}
	if strings.TrimSpace(text) == "" {
		metrics.RoutingResolutions.WithLabelValues(string(mode), "empty").Inc()
		return &OptimizeResult{Mode: mode, Result: &router.Result{RawRequest: text, Mode: mode}}, nil
	}

	snap := s.current.Load()
	if snap == nil {
		return nil, apperrors.NewNotConfiguredError("no prompt templates loaded")
	}
	if agentID == nil && snap.client == nil {
		return nil, apperrors.NewNotConfiguredError("an API key is required for automatic routing")
	}
	ctx, span := s.obs.StartSpan(ctx, "switcher.optimize",
		attribute.String("mode", string(mode)),
		attribute.Int("text.length", len(text)),
	)
	defer span.End()

	var classifierArg router.Classifier
	if snap.client != nil {
		classifierArg = snap.client
	}

	start := time.Now()
	res, err := s.router.Resolve(ctx, snap.store, classifierArg, text, agentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.obs.RecordResolution(ctx, string(mode), "error", time.Since(start))
		return nil, s.mapResolveError(err, agentID)
	}

	outcome := "resolved"
	switch {
	case res.Empty():
		outcome = "empty"
	case res.Fallback:
		outcome = "fallback"
	}
	s.obs.RecordResolution(ctx, string(mode), outcome, time.Since(start))
	span.SetAttributes(attribute.String("outcome", outcome), attribute.String("template.id", res.ID.String()))

	out := &OptimizeResult{
		OptimizedText: res.FinalText,
		Mode:          res.Mode,
		Fallback:      res.Fallback,
		Result:        res,
	}
	if !res.Empty() {
		out.Agent = &prompts.Metadata{ID: res.ID, Name: res.Name, Description: res.Description}
	}
	return out, nil
}

func (s *Service) mapResolveError(err error, agentID *prompts.ID) error {
	switch {
	case errors.Is(err, router.ErrUnknownTemplateID):
		id := ""
		var unknown *router.UnknownTemplateError
		if errors.As(err, &unknown) {
			id = unknown.ID.String()
		} else if agentID != nil {
			id = agentID.String()
		}
		return apperrors.NewUnknownTemplateIDError(id, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("optimize cancelled: %w", err)
	default:
		return apperrors.NewInternalError(err)
	}
}

// Settings returns the stored settings with the API key masked.
func (s *Service) Settings(ctx context.Context) (*settings.Settings, error) {
	stored, err := s.settings.Load(ctx)
	if err != nil {
		return nil, apperrors.NewSettingsStoreFailedError(err)
	}
	return stored.Masked(), nil
}

// SaveSettings merges update into the stored settings: empty fields keep
// their stored value. Templates are validated before anything is written,
// and the snapshot is rebuilt afterwards.
func (s *Service) SaveSettings(ctx context.Context, update *settings.Settings) error {
	if update == nil {
		return apperrors.NewInvalidRequestError("settings body is required")
	}
	if update.APIKey != "" && !strings.HasPrefix(update.APIKey, apiKeyPrefix) {
		return apperrors.NewInvalidAPIKeyError(`API key should start with "sk-"`)
	}
	if len(update.Prompts) > 0 {
		if _, err := prompts.Build(update.Prompts); err != nil {
			return apperrors.NewTemplateValidationFailedError(err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.settings.Load(ctx)
	if err != nil {
		return apperrors.NewSettingsStoreFailedError(err)
	}
	merged := &settings.Settings{
		APIKey:  firstNonEmpty(update.APIKey, stored.APIKey),
		Model:   firstNonEmpty(strings.TrimSpace(update.Model), stored.Model),
		Prompts: stored.Prompts,
	}
	if len(update.Prompts) > 0 {
		merged.Prompts = update.Prompts
	}

	if err := s.settings.Save(ctx, merged); err != nil {
		return apperrors.NewSettingsStoreFailedError(err)
	}
	return s.reloadLocked(ctx)
}

// ClearSettings wipes the stored settings and reloads, which reseeds the
// defaults.
func (s *Service) ClearSettings(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.settings.Clear(ctx); err != nil {
		return apperrors.NewSettingsStoreFailedError(err)
	}
	return s.reloadLocked(ctx)
}

// VerifyModel makes a test call with apiKey and model without saving them.
func (s *Service) VerifyModel(ctx context.Context, apiKey, model string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return apperrors.NewInvalidAPIKeyError("API key is required")
	}
	if !strings.HasPrefix(apiKey, apiKeyPrefix) {
		return apperrors.NewInvalidAPIKeyError(`API key should start with "sk-"`)
	}
	model = firstNonEmpty(strings.TrimSpace(model), classifier.DefaultModel)

	if err := s.newClient(classifier.Config{APIKey: apiKey, Model: model}).Ping(ctx); err != nil {
		s.logger.Warn("model verification failed", map[string]interface{}{"model": model, "error": err})
		if errors.Is(err, classifier.ErrClassificationTimeout) {
			return apperrors.NewClassificationTimeoutError(err)
		}
		return apperrors.NewModelVerificationFailedError(err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
