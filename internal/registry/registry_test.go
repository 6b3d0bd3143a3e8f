package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/brc"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/registry"
)

func newTestClient(t *testing.T) *brc.Client {
	t.Helper()

	cfg := brc.DefaultConfig()
	cfg.ServiceName = model.ServiceGoogle
	cfg.Dataset = []string{"https://example.com/a.jpg"}

	client, err := brc.New(cfg, 1, 1, nil, nil, nil, nil, nil)
	require.NoError(t, err)

	t.Cleanup(client.Stop)

	return client
}

func TestRegisterAndGet(t *testing.T) {
	r := registry.New()
	client := newTestClient(t)

	id := r.Register(client)
	assert.Equal(t, id, client.ID)

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Same(t, client, got)
}

func TestGetUnknownID(t *testing.T) {
	r := registry.New()

	_, err := r.Get(999)
	assert.Error(t, err)
}

func TestRemoveStopsAndDeletes(t *testing.T) {
	r := registry.New()
	client := newTestClient(t)

	id := r.Register(client)
	r.Remove(id)

	_, err := r.Get(id)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Len())
}
