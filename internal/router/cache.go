package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"prompt-switcher/internal/prompts"

	"github.com/redis/go-redis/v9"
)

// DecisionCache remembers which template a classifier picked for a given
// text. It only ever holds ids; results are rendered fresh on every call.
type DecisionCache interface {
	Get(ctx context.Context, key string) (prompts.ID, bool, error)
	Set(ctx context.Context, key string, id prompts.ID) error
}

// CacheKeyer lets a classifier contribute to the cache key, so switching
// model does not reuse another model's decisions.
type CacheKeyer interface {
	CacheKey() string
}

const cachePrefix = "prompt-switcher:route:"

func cacheKey(store *prompts.Store, classifier Classifier, rawText string) string {
	scope := ""
	if k, ok := classifier.(CacheKeyer); ok {
		scope = k.CacheKey()
	}
	sum := sha256.Sum256([]byte(scope + "\x00" + rawText))
	return cachePrefix + store.Fingerprint() + ":" + hex.EncodeToString(sum[:16])
}

// RedisCache stores decisions as JSON-encoded ids with a TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (prompts.ID, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return prompts.ID{}, false, nil
	}
	if err != nil {
		return prompts.ID{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var id prompts.ID
	if err := id.UnmarshalJSON([]byte(val)); err != nil {
		return prompts.ID{}, false, nil
	}
	return id, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, id prompts.ID) error {
	data, err := id.MarshalJSON()
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, string(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
