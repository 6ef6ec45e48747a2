package textextract

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

const cacheKeyPrefix = "textextract:pages:"

// CachedExtractor memoises page text in Redis keyed by the BLAKE2b-256 of the
// document bytes. Cache failures are logged and never fail extraction.
type CachedExtractor struct {
	next   Extractor
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedExtractor wraps next. A nil client disables caching.
func NewCachedExtractor(next Extractor, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedExtractor {
	return &CachedExtractor{next: next, client: client, ttl: ttl, logger: logger}
}

// CacheKey returns the Redis key used for data.
func CacheKey(data []byte) string {
	sum := blake2b.Sum256(data)
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Extract implements Extractor.
func (c *CachedExtractor) Extract(ctx context.Context, name string, data []byte) (Document, error) {
	if c.client == nil {
		return c.next.Extract(ctx, name, data)
	}
	key := CacheKey(data)
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var pages []string
		if jsonErr := json.Unmarshal(payload, &pages); jsonErr == nil {
			return Document{Name: name, Pages: pages}, nil
		}
		c.log().Warn("discarding corrupt cache entry", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log().Warn("cache read failed", slog.String("document", name), slog.Any("error", err))
	}

	doc, err := c.next.Extract(ctx, name, data)
	if err != nil {
		return Document{}, err
	}
	raw, err := json.Marshal(doc.Pages)
	if err == nil {
		err = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	if err != nil {
		c.log().Warn("cache write failed", slog.String("document", name), slog.Any("error", err))
	}
	return doc, nil
}

func (c *CachedExtractor) log() *slog.Logger {
	if c.logger != nil {
		return c.logger.With(slog.String("component", "text_cache"))
	}
	return slog.Default().With(slog.String("component", "text_cache"))
}
