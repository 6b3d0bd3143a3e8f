package brc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/brc"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/provider"
	"github.com/lerian-labs/icvsb-gateway/internal/requestclient"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
)

// fakeProvider returns a fixed Result for every Fetch call, regardless of
// uri, so dataset-wide benchmarks can be driven deterministically.
type fakeProvider struct {
	result provider.Result
}

func (f *fakeProvider) Fetch(_ context.Context, _ string, _ int, _ float64) provider.Result {
	return f.result
}

func labelsResult(labels map[string]float64) provider.Result {
	return provider.Result{Body: model.EncodeLabels(labels), Success: true, Labels: labels}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	return st
}

func newTestClient(t *testing.T, st *store.Store, lp provider.LabelProvider, mutate func(*brc.Config)) *brc.Client {
	t.Helper()

	ctx := context.Background()

	service, err := store.NewServiceRepository(st).GetByName(ctx, model.ServiceGoogle)
	require.NoError(t, err)

	severity, err := store.NewSeverityRepository(st).GetByName(ctx, model.SeverityInfo)
	require.NoError(t, err)

	rc := requestclient.New(st, lp, service.ID, 100, 0.5)

	cfg := brc.DefaultConfig()
	cfg.ServiceName = service.Name
	cfg.Dataset = []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}
	cfg.Autobenchmark = false

	if mutate != nil {
		mutate(&cfg)
	}

	client, err := brc.New(cfg, service.ID, severity.ID, rc, store.NewBenchmarkKeyRepository(st), store.NewResponseRepository(st), nil, nil)
	require.NoError(t, err)

	t.Cleanup(client.Stop)

	return client
}

func TestSendURIWithKey_FirstBenchmarkIsolation(t *testing.T) {
	st := newTestStore(t)
	client := newTestClient(t, st, &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.9})}, nil)

	assert.Nil(t, client.CurrentKey())

	result := client.SendURIWithKey(context.Background(), "https://example.com/c.jpg", client.CurrentKey())
	require.NotNil(t, result.KeyError)
	assert.Equal(t, apperr.ReasonNoKeyYet, result.KeyError.Reason)
	assert.Nil(t, result.Response)
}

func TestSendURIWithKey_ExactReproduction(t *testing.T) {
	st := newTestStore(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}
	client := newTestClient(t, st, lp, nil)

	require.NoError(t, client.Benchmark(context.Background()))
	require.NotNil(t, client.CurrentKey())

	result := client.SendURIWithKey(context.Background(), "https://example.com/a.jpg", client.CurrentKey())

	assert.Nil(t, result.KeyError)
	assert.Nil(t, result.ResponseError)
	assert.InDelta(t, 0.95, result.Labels["cat"], 0.0001)
	assert.Equal(t, int64(0), client.InvalidStateCount())
}

func TestSendURIWithKey_DriftDetection(t *testing.T) {
	st := newTestStore(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}

	client := newTestClient(t, st, lp, func(cfg *brc.Config) {
		cfg.ExpectedLabels = []string{"dog"}
	})

	require.NoError(t, client.Benchmark(context.Background()))

	result := client.SendURIWithKey(context.Background(), "https://example.com/a.jpg", client.CurrentKey())

	require.NotNil(t, result.ResponseError)
	assert.Equal(t, apperr.ReasonExpectedLabelsMismatch, result.ResponseError.Reason)
	assert.Equal(t, int64(1), client.InvalidStateCount())
}

func TestSendURIWithKey_SeverityExceptionHidesLabels(t *testing.T) {
	st := newTestStore(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}

	client := newTestClient(t, st, lp, func(cfg *brc.Config) {
		cfg.Severity = model.SeverityException
		cfg.ExpectedLabels = []string{"dog"}
	})

	require.NoError(t, client.Benchmark(context.Background()))

	result := client.SendURIWithKey(context.Background(), "https://example.com/a.jpg", client.CurrentKey())

	require.NotNil(t, result.ResponseError)
	assert.Nil(t, result.Labels)
	assert.Nil(t, result.Response)
}

func TestBenchmark_ReplacesOnlyWhenDivergent(t *testing.T) {
	st := newTestStore(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}
	client := newTestClient(t, st, lp, func(cfg *brc.Config) {
		cfg.DeltaLabels = 0
	})

	require.NoError(t, client.Benchmark(context.Background()))
	first := client.CurrentKey()
	require.NotNil(t, first)

	require.NoError(t, client.Benchmark(context.Background()))
	second := client.CurrentKey()
	require.NotNil(t, second)

	assert.Equal(t, first.Model.ID, second.Model.ID, "an equivalent re-benchmark must not replace the current key")
	assert.Equal(t, int64(2), client.BenchmarkCount())

	lp.result = labelsResult(map[string]float64{"dog": 0.95})
	require.NoError(t, client.Benchmark(context.Background()))
	third := client.CurrentKey()
	require.NotNil(t, third)

	assert.NotEqual(t, second.Model.ID, third.Model.ID, "a divergent re-benchmark must replace the current key")
}

func TestFailcountTriggersReBenchmark(t *testing.T) {
	st := newTestStore(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}

	client := newTestClient(t, st, lp, func(cfg *brc.Config) {
		cfg.ExpectedLabels = []string{"dog"}
		cfg.TriggerOnFailcount = 1
	})

	require.NoError(t, client.Benchmark(context.Background()))
	baseline := client.BenchmarkCount()

	// Each call under the mismatched expectation records a failure against
	// the breaker; crossing the threshold fires Benchmark on a detached
	// goroutine.
	client.SendURIWithKey(context.Background(), "https://example.com/a.jpg", client.CurrentKey())
	client.SendURIWithKey(context.Background(), "https://example.com/a.jpg", client.CurrentKey())

	assert.Eventually(t, func() bool {
		return client.BenchmarkCount() > baseline
	}, time.Second, 10*time.Millisecond)
}
