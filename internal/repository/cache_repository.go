package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/internal/store"
	appErrors "github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-XIV/pkg/errors"
)

// CacheRepository is the Redis-backed document cache behind cache-scoped
// query execution. Entries are keyed by query digest and hold the full
// result snapshot of the query's first page.
type CacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCacheRepository constructs the cache repository.
func NewCacheRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *CacheRepository {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, ttl: ttl, logger: logger}
}

// GetDocs retrieves the cached snapshot for a query digest.
func (r *CacheRepository) GetDocs(ctx context.Context, key string) ([]store.Document, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var docs []store.Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("unmarshal cached snapshot %s: %w", key, err)
	}
	return docs, nil
}

// SetDocs stores the snapshot for a query digest.
func (r *CacheRepository) SetDocs(ctx context.Context, key string, docs []store.Document) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", key, err)
	}

	if err := r.client.Set(ctx, cacheKey(key), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// InvalidateCollection removes every cached snapshot for a collection, used
// after a forced refresh resync.
func (r *CacheRepository) InvalidateCollection(ctx context.Context, collection string) error {
	if r.client == nil {
		return nil
	}

	iter := r.client.Scan(ctx, 0, cacheKey(collection+":*"), 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", collection, err)
	}
	return nil
}

func cacheKey(key string) string {
	return "sync:q:" + key
}
