package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/cache"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(mr.Close)

	c := cache.New(mr.Addr(), time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestLookup_MissReportsNotIdentical(t *testing.T) {
	c := newTestCache(t)

	identical, err := c.Lookup(context.Background(), 1, 1, "https://example.com/a.jpg", []byte(`{"labels":{}}`))
	require.NoError(t, err)
	assert.False(t, identical)
}

func TestStoreThenLookup_ByteIdenticalHits(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	body := []byte(`{"labels":{"cat":0.9}}`)

	require.NoError(t, c.Store(ctx, 1, 1, "https://example.com/a.jpg", body))

	identical, err := c.Lookup(ctx, 1, 1, "https://example.com/a.jpg", body)
	require.NoError(t, err)
	assert.True(t, identical)
}

func TestLookup_DifferentBodyMisses(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Store(ctx, 1, 1, "https://example.com/a.jpg", []byte(`{"labels":{"cat":0.9}}`)))

	identical, err := c.Lookup(ctx, 1, 1, "https://example.com/a.jpg", []byte(`{"labels":{"dog":0.9}}`))
	require.NoError(t, err)
	assert.False(t, identical)
}

func TestLookup_ScopedByKeyAndURI(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	body := []byte(`{"labels":{"cat":0.9}}`)
	require.NoError(t, c.Store(ctx, 1, 1, "https://example.com/a.jpg", body))

	// A different key ID under the same BRC is a separate cache entry, even
	// with byte-identical bodies.
	identical, err := c.Lookup(ctx, 1, 2, "https://example.com/a.jpg", body)
	require.NoError(t, err)
	assert.False(t, identical)

	// A different URI under the same (brc, key) is likewise separate.
	identical, err = c.Lookup(ctx, 1, 1, "https://example.com/b.jpg", body)
	require.NoError(t, err)
	assert.False(t, identical)
}
