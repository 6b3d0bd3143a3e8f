// Package cache implements the byte-identical response cache that backs
// GET /labels's 304 semantics. Backed by redis/go-redis/v9 rather than an
// in-memory LRU (see DESIGN.md's Open Question decision).
package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached response stays eligible for a 304,
// so a BRC's cache does not grow unbounded across key replacements.
const DefaultTTL = 24 * time.Hour

// Cache is the shared handle used by internal/httpapi to decide 200 vs 304.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New opens a client against addr (host:port, no scheme).
func New(addr string, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{rdb: redis.NewClient(&redis.Options{Addr: addr}), ttl: ttl}
}

func key(brcID, keyID int64, uri string) string {
	return fmt.Sprintf("icvsb:response:%d:%d:%s", brcID, keyID, uri)
}

// Lookup reports whether body is byte-identical to what is cached for
// (brcID, keyID, uri). A miss always means "not identical" (200, not 304).
func (c *Cache) Lookup(ctx context.Context, brcID, keyID int64, uri string, body []byte) (identical bool, err error) {
	cached, err := c.rdb.Get(ctx, key(brcID, keyID, uri)).Bytes()
	if err == redis.Nil {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("cache: lookup: %w", err)
	}

	return bytes.Equal(cached, body), nil
}

// Store records body as the cached response for (brcID, keyID, uri).
func (c *Cache) Store(ctx context.Context, brcID, keyID int64, uri string, body []byte) error {
	if err := c.rdb.Set(ctx, key(brcID, keyID, uri), body, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache: store: %w", err)
	}

	return nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }
