package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"prompt-switcher/internal/common/logger"
	"prompt-switcher/internal/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestStore(t *testing.T) *prompts.Store {
	t.Helper()
	store, err := prompts.Build([]any{
		map[string]any{"id": 1, "name": "Fix CSS", "description": "fixes styling issues", "body": "Do: [RAW_REQUEST]"},
		map[string]any{"id": 2, "name": "Explain", "description": "explains code", "body": "Explain: [RAW_REQUEST] please"},
	})
	require.NoError(t, err)
	return store
}

// mockClassifier records calls and replays a fixed answer.
type mockClassifier struct {
	id    prompts.ID
	err   error
	calls atomic.Int32
	last  Request
	mu    sync.Mutex
}

func (m *mockClassifier) Classify(ctx context.Context, req Request) (prompts.ID, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.last = req
	m.mu.Unlock()
	return m.id, m.err
}

// memoryCache is a DecisionCache that counts writes.
type memoryCache struct {
	mu     sync.Mutex
	data   map[string]prompts.ID
	writes int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string]prompts.ID)}
}

func (c *memoryCache) Get(ctx context.Context, key string) (prompts.ID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.data[key]
	return id, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, id prompts.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = id
	c.writes++
	return nil
}

func idPtr(id prompts.ID) *prompts.ID {
	return &id
}

// ==========================
// Manual Mode
// ==========================

func TestResolve_Manual(t *testing.T) {
	store := createTestStore(t)
	classifier := &mockClassifier{id: prompts.IntID(1)}
	r := New(WithLogger(logger.NewTestLogger(t)))

	res, err := r.Resolve(context.Background(), store, classifier, "hello", idPtr(prompts.IntID(2)))
	require.NoError(t, err)

	assert.Equal(t, "Explain: hello please", res.FinalText)
	assert.Equal(t, prompts.IntID(2), res.ID)
	assert.Equal(t, "Explain", res.Name)
	assert.Equal(t, "explains code", res.Description)
	assert.Equal(t, "Explain: [RAW_REQUEST] please", res.TemplateBody)
	assert.Equal(t, "hello", res.RawRequest)
	assert.Equal(t, ModeManual, res.Mode)
	assert.False(t, res.Fallback)
	assert.Zero(t, classifier.calls.Load())
}

func TestResolve_ManualIsDeterministic(t *testing.T) {
	store := createTestStore(t)
	r := New()

	first, err := r.Resolve(context.Background(), store, nil, "same input", idPtr(prompts.IntID(1)))
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), store, nil, "same input", idPtr(prompts.IntID(1)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolve_ManualWithoutClassifier(t *testing.T) {
	store := createTestStore(t)

	res, err := New().Resolve(context.Background(), store, nil, "hello", idPtr(prompts.StringID("1")))
	require.NoError(t, err)
	assert.Equal(t, "Do: hello", res.FinalText)
}

func TestResolve_ManualUnknownID(t *testing.T) {
	store := createTestStore(t)
	classifier := &mockClassifier{id: prompts.IntID(1)}

	res, err := New().Resolve(context.Background(), store, classifier, "hello", idPtr(prompts.IntID(99)))
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownTemplateID))

	var unknown *UnknownTemplateError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "99", unknown.ID.String())
	assert.Contains(t, err.Error(), "99")
	assert.Zero(t, classifier.calls.Load())
}

// ==========================
// Auto Mode
// ==========================

func TestResolve_AutoClassified(t *testing.T) {
	store := createTestStore(t)
	classifier := &mockClassifier{id: prompts.IntID(2)}

	res, err := New().Resolve(context.Background(), store, classifier, "hello", nil)
	require.NoError(t, err)

	assert.Equal(t, "Explain: hello please", res.FinalText)
	assert.Equal(t, ModeAuto, res.Mode)
	assert.False(t, res.Fallback)
	assert.EqualValues(t, 1, classifier.calls.Load())

	assert.Equal(t, "hello", classifier.last.RawRequest)
	assert.Equal(t, DefaultSystemInstruction, classifier.last.SystemInstruction)
	assert.Equal(t, store.Metadata(), classifier.last.Metadata)
}

func TestResolve_AutoStringReplyMatchesNumericID(t *testing.T) {
	store := createTestStore(t)
	classifier := &mockClassifier{id: prompts.StringID("2")}

	res, err := New().Resolve(context.Background(), store, classifier, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "Explain", res.Name)
	assert.False(t, res.Fallback)
}

func TestResolve_AutoFallback(t *testing.T) {
	tests := []struct {
		name       string
		classifier Classifier
	}{
		{
			name:       "classifier error",
			classifier: &mockClassifier{err: errors.New("connection refused")},
		},
		{
			name:       "unknown id",
			classifier: &mockClassifier{id: prompts.IntID(42)},
		},
		{
			name:       "no classifier",
			classifier: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createTestStore(t)

			res, err := New(WithLogger(logger.NewTestLogger(t))).Resolve(context.Background(), store, tt.classifier, "hello", nil)
			require.NoError(t, err)

			assert.Equal(t, prompts.IntID(1), res.ID)
			assert.Equal(t, "Do: hello", res.FinalText)
			assert.True(t, res.Fallback)
			assert.Equal(t, ModeAuto, res.Mode)
		})
	}
}

func TestResolve_AutoFallbackUsesListOrderNotLowestID(t *testing.T) {
	store, err := prompts.Build([]any{
		map[string]any{"id": 9, "name": "Nine", "description": "d", "body": "9: [RAW_REQUEST]"},
		map[string]any{"id": 1, "name": "One", "description": "d", "body": "1: [RAW_REQUEST]"},
	})
	require.NoError(t, err)

	res, err := New().Resolve(context.Background(), store, &mockClassifier{err: errors.New("boom")}, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "9: x", res.FinalText)
}

func TestResolve_AutoBlankInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t"} {
		store := createTestStore(t)
		classifier := &mockClassifier{id: prompts.IntID(2)}

		res, err := New().Resolve(context.Background(), store, classifier, raw, nil)
		require.NoError(t, err)

		assert.True(t, res.Empty())
		assert.Empty(t, res.FinalText)
		assert.Equal(t, raw, res.RawRequest)
		assert.Zero(t, classifier.calls.Load())
	}
}

func TestResolve_SubstitutesFirstPlaceholderOnly(t *testing.T) {
	store, err := prompts.Build([]any{
		map[string]any{"id": "twice", "name": "Twice", "description": "d", "body": "A [RAW_REQUEST] B [RAW_REQUEST]"},
	})
	require.NoError(t, err)

	res, err := New().Resolve(context.Background(), store, &mockClassifier{id: prompts.StringID("twice")}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "A hi B [RAW_REQUEST]", res.FinalText)
}

// ==========================
// Timeout and Cancellation
// ==========================

func TestResolve_TimeoutFallsBack(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := createTestStore(t)
	classifier := ClassifierFunc(func(ctx context.Context, req Request) (prompts.ID, error) {
		<-ctx.Done()
		return prompts.ID{}, ctx.Err()
	})
	cache := newMemoryCache()

	start := time.Now()
	res, err := New(WithTimeout(30*time.Millisecond), WithCache(cache)).
		Resolve(context.Background(), store, classifier, "slow", nil)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Fallback)
	assert.Equal(t, "Do: slow", res.FinalText)
	assert.Zero(t, cache.writes)
}

func TestResolve_TimeoutWithClassifierIgnoringContext(t *testing.T) {
	store := createTestStore(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	classifier := ClassifierFunc(func(ctx context.Context, req Request) (prompts.ID, error) {
		<-release
		return prompts.IntID(2), nil
	})

	res, err := New(WithTimeout(20*time.Millisecond)).Resolve(context.Background(), store, classifier, "stuck", nil)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, prompts.IntID(1), res.ID)
}

func TestResolve_CallerCancellationDoesNotWriteCache(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := createTestStore(t)
	cache := newMemoryCache()
	ctx, cancel := context.WithCancel(context.Background())

	classifier := ClassifierFunc(func(cctx context.Context, req Request) (prompts.ID, error) {
		cancel()
		return prompts.IntID(2), nil
	})

	res, err := New(WithCache(cache)).Resolve(ctx, store, classifier, "abandoned", nil)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, cache.writes)
}

func TestResolve_CallerDeadlineFallsBack(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := createTestStore(t)
	cache := newMemoryCache()
	classifier := ClassifierFunc(func(ctx context.Context, req Request) (prompts.ID, error) {
		<-ctx.Done()
		return prompts.ID{}, ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := New(WithTimeout(5*time.Second), WithCache(cache)).Resolve(ctx, store, classifier, "slow caller", nil)
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, "Do: slow caller", res.FinalText)
	assert.Zero(t, cache.writes)
}

func TestResolve_LateReplyAfterCallerDeadlineIsNotCached(t *testing.T) {
	store := createTestStore(t)
	cache := newMemoryCache()

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	classifier := ClassifierFunc(func(cctx context.Context, req Request) (prompts.ID, error) {
		<-ctx.Done()
		return prompts.IntID(2), nil
	})

	res, err := New(WithTimeout(5*time.Second), WithCache(cache)).Resolve(ctx, store, classifier, "late", nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Zero(t, cache.writes)
}

// ==========================
// Decision Cache
// ==========================

func TestResolve_CacheWrittenOnSuccessAndReused(t *testing.T) {
	store := createTestStore(t)
	cache := newMemoryCache()
	classifier := &mockClassifier{id: prompts.IntID(2)}
	r := New(WithCache(cache))

	first, err := r.Resolve(context.Background(), store, classifier, "hello", nil)
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), store, classifier, "hello", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, cache.writes)
	assert.EqualValues(t, 1, classifier.calls.Load())
	assert.Equal(t, first.FinalText, second.FinalText)
}

func TestResolve_FallbackIsNotCached(t *testing.T) {
	store := createTestStore(t)
	cache := newMemoryCache()

	_, err := New(WithCache(cache)).Resolve(context.Background(), store, &mockClassifier{id: prompts.IntID(77)}, "hello", nil)
	require.NoError(t, err)
	assert.Zero(t, cache.writes)
}

func TestResolve_StaleCacheEntryIgnored(t *testing.T) {
	store := createTestStore(t)
	cache := newMemoryCache()
	classifier := &mockClassifier{id: prompts.IntID(2)}

	cache.data[cacheKey(store, classifier, "hello")] = prompts.IntID(404)

	res, err := New(WithCache(cache)).Resolve(context.Background(), store, classifier, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, prompts.IntID(2), res.ID)
	assert.EqualValues(t, 1, classifier.calls.Load())
}

func TestCacheKey_ScopedByStoreAndClassifier(t *testing.T) {
	store := createTestStore(t)
	other, err := prompts.Build([]any{
		map[string]any{"id": 1, "name": "Other", "description": "d", "body": "[RAW_REQUEST]"},
	})
	require.NoError(t, err)

	assert.Equal(t, cacheKey(store, nil, "x"), cacheKey(store, nil, "x"))
	assert.NotEqual(t, cacheKey(store, nil, "x"), cacheKey(other, nil, "x"))
	assert.NotEqual(t, cacheKey(store, nil, "x"), cacheKey(store, nil, "y"))
	assert.NotEqual(t, cacheKey(store, keyedClassifier("gpt-4o"), "x"), cacheKey(store, keyedClassifier("gpt-4o-mini"), "x"))
}

type keyedClassifier string

func (k keyedClassifier) Classify(ctx context.Context, req Request) (prompts.ID, error) {
	return prompts.ID{}, errors.New("unused")
}

func (k keyedClassifier) CacheKey() string { return string(k) }
