package httpapi_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/brc"
	"github.com/lerian-labs/icvsb-gateway/internal/httpapi"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/provider"
	"github.com/lerian-labs/icvsb-gateway/internal/registry"
	"github.com/lerian-labs/icvsb-gateway/internal/requestclient"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
)

type fakeProvider struct {
	result provider.Result
}

func (f *fakeProvider) Fetch(_ context.Context, _ string, _ int, _ float64) provider.Result {
	return f.result
}

func labelsResult(labels map[string]float64) provider.Result {
	return provider.Result{Body: model.EncodeLabels(labels), Success: true, Labels: labels}
}

// testDeps wires a Handler's full dependency set against an in-memory
// SQLite store, mirroring how internal/bootstrap assembles Deps in
// production but without a live Redis or Postgres.
type testDeps struct {
	deps *httpapi.Deps
	st   *store.Store
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()

	st, err := store.Open(context.Background(), "sqlite://:memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = st.Close() })

	deps := &httpapi.Deps{
		Store:        st,
		Registry:     registry.New(),
		ServiceRepo:  store.NewServiceRepository(st),
		SeverityRepo: store.NewSeverityRepository(st),
		BatchRepo:    store.NewBatchRequestRepository(st),
		RequestRepo:  store.NewRequestRepository(st),
		ResponseRepo: store.NewResponseRepository(st),
		KeyRepo:      store.NewBenchmarkKeyRepository(st),
	}

	return &testDeps{deps: deps, st: st}
}

// registerBRC constructs and registers a benchmarked client against a
// fixed two-URI dataset, running its first benchmark synchronously so the
// test can make assertions immediately.
func (td *testDeps) registerBRC(t *testing.T, lp provider.LabelProvider, mutate func(*brc.Config)) (*brc.Client, int64) {
	t.Helper()

	ctx := context.Background()

	service, err := td.deps.ServiceRepo.GetByName(ctx, model.ServiceGoogle)
	require.NoError(t, err)

	severity, err := td.deps.SeverityRepo.GetByName(ctx, model.SeverityInfo)
	require.NoError(t, err)

	rc := requestclient.New(td.st, lp, service.ID, 100, 0.5)

	cfg := brc.DefaultConfig()
	cfg.ServiceName = service.Name
	cfg.Dataset = []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}
	cfg.Autobenchmark = false
	cfg.Severity = severity.Name

	if mutate != nil {
		mutate(&cfg)
	}

	if cfg.Severity != severity.Name {
		severity, err = td.deps.SeverityRepo.GetByName(ctx, cfg.Severity)
		require.NoError(t, err)
	}

	client, err := brc.New(cfg, service.ID, severity.ID, rc, td.deps.KeyRepo, td.deps.ResponseRepo, nil, nil)
	require.NoError(t, err)

	t.Cleanup(client.Stop)

	id := td.deps.Registry.Register(client)

	require.NoError(t, client.Benchmark(ctx))

	return client, id
}

func doGetLabels(t *testing.T, app *fiber.App, etag, uri, ifUnmodifiedSince string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/labels?uri="+uri, nil)
	req.Header.Set("If-Match", etag)

	if ifUnmodifiedSince != "" {
		req.Header.Set("If-Unmodified-Since", ifUnmodifiedSince)
	}

	resp, err := app.Test(req, 5000)
	require.NoError(t, err)

	return resp
}

func TestGetLabels_ExactMatchReturns200(t *testing.T) {
	td := newTestDeps(t)
	client, id := td.registerBRC(t, &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}, nil)

	app := httpapi.NewRouter(td.deps)

	etag := fmt.Sprintf(`W/"%d;%d"`, id, client.CurrentKey().Model.ID)
	resp := doGetLabels(t, app, etag, "https://example.com/a.jpg", "")

	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetLabels_DriftReturns412(t *testing.T) {
	td := newTestDeps(t)
	client, id := td.registerBRC(t, &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}, func(cfg *brc.Config) {
		cfg.ExpectedLabels = []string{"dog"}
	})

	app := httpapi.NewRouter(td.deps)

	etag := fmt.Sprintf(`W/"%d;%d"`, id, client.CurrentKey().Model.ID)
	resp := doGetLabels(t, app, etag, "https://example.com/a.jpg", "")

	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

func TestGetLabels_SeverityExceptionHidesLabelsOverHTTP(t *testing.T) {
	td := newTestDeps(t)
	client, id := td.registerBRC(t, &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}, func(cfg *brc.Config) {
		cfg.Severity = model.SeverityException
		cfg.ExpectedLabels = []string{"dog"}
	})

	app := httpapi.NewRouter(td.deps)

	etag := fmt.Sprintf(`W/"%d;%d"`, id, client.CurrentKey().Model.ID)
	resp := doGetLabels(t, app, etag, "https://example.com/a.jpg", "")

	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NotContains(t, string(body), "cat")
}

// TestGetLabels_IfUnmodifiedSinceSelectsHistoricalKey drives the
// no-key-segment If-Match path: the BRC's live current key has since moved
// on, so the caller-visible outcome is a key_error, but the mirrored log
// (read back over GET /benchmark/:id/log) must show the *historical* key
// id KeyAtOrBefore resolved, not the BRC's current one.
func TestGetLabels_IfUnmodifiedSinceSelectsHistoricalKey(t *testing.T) {
	td := newTestDeps(t)
	lp := &fakeProvider{result: labelsResult(map[string]float64{"cat": 0.95})}
	client, id := td.registerBRC(t, lp, func(cfg *brc.Config) {
		cfg.DeltaLabels = 0
	})

	firstKey := client.CurrentKey()
	require.NotNil(t, firstKey)

	// HTTP-dates carry only second precision, so pad generously on both
	// sides of the cutoff to keep the comparison robust against rounding.
	time.Sleep(1100 * time.Millisecond)

	cutoff := time.Now().UTC()

	time.Sleep(1100 * time.Millisecond)

	lp.result = labelsResult(map[string]float64{"dog": 0.95})
	require.NoError(t, client.Benchmark(context.Background()))

	secondKey := client.CurrentKey()
	require.NotEqual(t, firstKey.Model.ID, secondKey.Model.ID)

	app := httpapi.NewRouter(td.deps)

	etag := fmt.Sprintf(`W/"%d"`, id)
	resp := doGetLabels(t, app, etag, "https://example.com/a.jpg", cutoff.Format(http.TimeFormat))

	// The live current key (secondKey, trained on "dog") no longer agrees
	// with the historical key resolved from the cutoff (firstKey, trained
	// on "cat"), so the request fails its validity check.
	require.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	logResp, err := app.Test(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/benchmark/%d/log", id), nil), 5000)
	require.NoError(t, err)

	logBody, err := io.ReadAll(logResp.Body)
	require.NoError(t, err)

	require.Contains(t, string(logBody), fmt.Sprintf("key=%d", firstKey.Model.ID))
	require.NotContains(t, string(logBody), fmt.Sprintf("key=%d", secondKey.Model.ID))
}
