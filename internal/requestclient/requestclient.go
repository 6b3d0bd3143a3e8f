// Package requestclient implements synchronous and bounded-parallel
// dispatch of single or batch requests through one LabelProvider,
// persisting Request/Response/BatchRequest rows and never letting
// provider errors propagate past sendURI.
package requestclient

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/provider"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
)

// DefaultConcurrency bounds the worker pool used by SendURIsAsync absent
// configuration.
var DefaultConcurrency = runtime.NumCPU() * 4

// Client dispatches requests for one Service through one LabelProvider.
type Client struct {
	provider      provider.LabelProvider
	store         *store.Store
	requests      *store.RequestRepository
	responses     *store.ResponseRepository
	batches       *store.BatchRequestRepository
	serviceID     int64
	maxLabels     int
	minConfidence float64
	concurrency   int
}

// New constructs a Client bound to one Service/LabelProvider pair.
func New(s *store.Store, lp provider.LabelProvider, serviceID int64, maxLabels int, minConfidence float64) *Client {
	return &Client{
		provider:      lp,
		store:         s,
		requests:      store.NewRequestRepository(s),
		responses:     store.NewResponseRepository(s),
		batches:       store.NewBatchRequestRepository(s),
		serviceID:     serviceID,
		maxLabels:     maxLabels,
		minConfidence: minConfidence,
		concurrency:   DefaultConcurrency,
	}
}

// WithConcurrency overrides the worker-pool size used by SendURIsAsync.
func (c *Client) WithConcurrency(n int) *Client {
	if n > 0 {
		c.concurrency = n
	}

	return c
}

// SendURI persists a Request timestamped before dispatch, calls the
// provider, and persists a Response timestamped after. Provider errors never propagate: they become
// success=false rows and a WARN log line. Only store-write failures
// return an error.
func (c *Client) SendURI(ctx context.Context, uri string, batchRequestID *int64) (*model.Response, error) {
	logger := mlog.FromContext(ctx)

	req, err := c.requests.Create(ctx, c.serviceID, batchRequestID, uri, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("requestclient: persist request: %w", err)
	}

	result := c.provider.Fetch(ctx, uri, c.maxLabels, c.minConfidence)
	if !result.Success {
		logger.Warnf("requestclient: provider call failed for %s: %s", uri, string(result.Body))
	}

	resp, err := c.responses.Create(ctx, req.ID, result.Body, result.Success, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("requestclient: persist response: %w", err)
	}

	return resp, nil
}

// SendURIs is the serial fan-in of SendURI under one fresh BatchRequest.
func (c *Client) SendURIs(ctx context.Context, uris []string) (*model.BatchRequest, error) {
	batch, err := c.batches.Create(ctx, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("requestclient: create batch: %w", err)
	}

	for _, uri := range uris {
		if _, err := c.SendURI(ctx, uri, &batch.ID); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

// SendURIsAsync parallel fans-out one task per URI, bounded by c's
// concurrency, under one fresh BatchRequest. The returned channel closes
// once every row has been persisted; it
// carries at most one error, the first encountered. Requires a store that
// tolerates concurrent writers; single-writer stores (SQLite)
// get apperr.ErrUnsupportedBackend instead.
func (c *Client) SendURIsAsync(ctx context.Context, uris []string) (*model.BatchRequest, <-chan error, error) {
	if !c.store.SupportsConcurrentWriters() {
		return nil, nil, apperr.ErrUnsupportedBackend
	}

	batch, err := c.batches.Create(ctx, time.Now().UTC())
	if err != nil {
		return nil, nil, fmt.Errorf("requestclient: create batch: %w", err)
	}

	done := make(chan error, 1)
	sem := make(chan struct{}, c.concurrency)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		firstErr error
	)

	for _, uri := range uris {
		wg.Add(1)

		sem <- struct{}{}

		go func(uri string) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, err := c.SendURI(ctx, uri, &batch.ID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(uri)
	}

	go func() {
		wg.Wait()
		done <- firstErr
		close(done)
	}()

	return batch, done, nil
}
