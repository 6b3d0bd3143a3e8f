// Package brc implements the BenchmarkedRequestClient state machine:
// initial/scheduled/failure-triggered benchmarking, current-key lifecycle
// under copy-on-replace, and severity-shaped sendURIWithKey responses.
package brc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/benchmarkkey"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/obslog"
	"github.com/lerian-labs/icvsb-gateway/internal/requestclient"
	"github.com/lerian-labs/icvsb-gateway/internal/store"
	"github.com/lerian-labs/icvsb-gateway/internal/tracing"
	"github.com/lerian-labs/icvsb-gateway/internal/validation"
	"github.com/lerian-labs/icvsb-gateway/internal/webhook"
)

// Config holds the BenchmarkedRequestClient options, all defaultable via
// DefaultConfig.
type Config struct {
	ServiceName          model.ServiceName
	Dataset              []string
	MaxLabels            int
	MinConfidence        float64
	DeltaLabels          int
	DeltaConfidence      float64
	Severity             model.SeverityName
	ExpectedLabels       []string
	TriggerOnSchedule    string
	TriggerOnFailcount   int
	BenchmarkCallbackURI string
	WarningCallbackURI   string
	Autobenchmark        bool
}

// DefaultConfig returns sensible defaults; callers override only the
// fields they care about.
func DefaultConfig() Config {
	return Config{
		MaxLabels:          100,
		MinConfidence:      0.50,
		DeltaLabels:        5,
		DeltaConfidence:    0.01,
		Severity:           model.SeverityInfo,
		TriggerOnSchedule:  "0 0 * * 0",
		TriggerOnFailcount: 0,
		Autobenchmark:      true,
	}
}

// Result is the shape returned from SendURIWithKey:
// `{labels?, response?, key_error?, response_error?}`.
type Result struct {
	Labels        map[string]float64        `json:"labels,omitempty"`
	Response      *model.Response            `json:"response,omitempty"`
	KeyError      *apperr.KeyValidityError   `json:"key_error,omitempty"`
	ResponseError *apperr.KeyValidityError   `json:"response_error,omitempty"`
}

// Client is one BenchmarkedRequestClient instance.
type Client struct {
	ID int64 // assigned by internal/registry on creation

	cfg        Config
	serviceID  int64
	severityID int64

	rc           *requestclient.Client
	keyRepo      *store.BenchmarkKeyRepository
	responseRepo *store.ResponseRepository
	webhookPub   *webhook.Publisher
	logger       mlog.Logger
	ring         *obslog.RingLog

	createdAt time.Time

	mu                sync.RWMutex
	currentKey        *benchmarkkey.Key
	keyHistory        []*benchmarkkey.Key
	benchmarking      atomic.Bool
	benchmarkCount    int64
	lastBenchmarkTime time.Time
	invalidStateCount int64

	breaker  *gobreaker.CircuitBreaker
	schedule cron.Schedule
	stopCh   chan struct{}
}

// New constructs a BRC. It does not start the initial benchmark; callers
// decide when to kick that off as a detached task after registering the BRC.
func New(cfg Config, serviceID, severityID int64, rc *requestclient.Client, keyRepo *store.BenchmarkKeyRepository, responseRepo *store.ResponseRepository, pub *webhook.Publisher, logger mlog.Logger) (*Client, error) {
	if cfg.Severity == model.SeverityWarning && cfg.WarningCallbackURI == "" {
		return nil, apperr.ErrMissingWarningHook
	}

	schedule, err := validation.CronLine(cfg.TriggerOnSchedule)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = mlog.NoneLogger{}
	}

	ring := obslog.NewRingLog(2000)

	c := &Client{
		cfg:          cfg,
		serviceID:    serviceID,
		severityID:   severityID,
		rc:           rc,
		keyRepo:      keyRepo,
		responseRepo: responseRepo,
		webhookPub:   pub,
		logger:       obslog.NewMirroringLogger(logger, ring),
		ring:         ring,
		createdAt:    time.Now().UTC(),
		schedule:     schedule,
		stopCh:       make(chan struct{}),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "brc-failcount",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.TriggerOnFailcount > 0 && counts.TotalFailures > uint32(cfg.TriggerOnFailcount)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				c.logger.Warnf("brc: failure threshold reached, triggering re-benchmark")
				go c.Benchmark(context.Background())
			}
		},
	})

	go c.runScheduler()

	return c, nil
}

// Log returns the per-BRC mirrored log text (GET /benchmark/:id/log).
func (c *Client) Log() string { return c.ring.Text() }

// RingLog exposes the underlying ring so obslog.WithBRCLog can mirror into
// it from request-handling contexts.
func (c *Client) RingLog() *obslog.RingLog { return c.ring }

// Stop cancels the scheduler task.
func (c *Client) Stop() { close(c.stopCh) }

func (c *Client) runScheduler() {
	for {
		next := c.schedule.Next(time.Now())

		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			if err := c.Benchmark(context.Background()); err != nil {
				c.logger.Errorf("brc: scheduled benchmark failed: %v", err)
			}
		case <-c.stopCh:
			timer.Stop()
			return
		}
	}
}

// Benchmarking reports whether a benchmark fan-out is currently in flight.
func (c *Client) Benchmarking() bool { return c.benchmarking.Load() }

// Benchmark mints a new key by fanning out over the configured dataset. On
// first run it adopts the key unconditionally; afterward it replaces the
// current key only if the new one is not valid_against it.
func (c *Client) Benchmark(ctx context.Context) error {
	if !c.benchmarking.CompareAndSwap(false, true) {
		return nil
	}
	defer c.benchmarking.Store(false)

	ctx, span := tracing.Start(ctx, "brc.benchmark")
	defer span.End()

	batch, err := c.dispatchDataset(ctx)
	if err != nil {
		tracing.HandleSpanError(span, "benchmark dispatch failed", err)
		return fmt.Errorf("brc: benchmark dispatch: %w", err)
	}

	batchView, err := c.buildBatchView(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("brc: assemble batch view: %w", err)
	}

	keyModel := &model.BenchmarkKey{
		ServiceID:       c.serviceID,
		BatchRequestID:  batch.ID,
		SeverityID:      c.severityID,
		CreatedAt:       time.Now().UTC(),
		DeltaLabels:     c.cfg.DeltaLabels,
		DeltaConfidence: c.cfg.DeltaConfidence,
		MaxLabels:       c.cfg.MaxLabels,
		MinConfidence:   c.cfg.MinConfidence,
		ExpectedLabels:  c.cfg.ExpectedLabels,
	}

	persisted, err := c.keyRepo.Create(ctx, keyModel)
	if err != nil {
		return fmt.Errorf("brc: persist benchmark key: %w", err)
	}

	newKey := &benchmarkkey.Key{Model: persisted, Batch: batchView, Severity: c.cfg.Severity}

	c.adopt(ctx, newKey)

	if c.cfg.BenchmarkCallbackURI != "" && c.webhookPub != nil {
		go c.webhookPub.Publish(context.Background(), c.cfg.BenchmarkCallbackURI, map[string]any{
			"brc_id":          c.ID,
			"key_id":          c.currentKeyID(),
			"benchmark_count": c.BenchmarkCount(),
		})
	}

	return nil
}

// adopt applies the replacement rule under the per-BRC
// mutex (copy-on-replace, shared-resource rule 3).
func (c *Client) adopt(ctx context.Context, newKey *benchmarkkey.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.currentKey == nil:
		c.currentKey = newKey
		c.keyHistory = append(c.keyHistory, newKey)
	default:
		ok, _ := c.currentKey.ValidAgainstKey(newKey)
		if ok {
			// Equivalent key: discarded rather than adopted, per
			// DESIGN.md's Open Question decision, but the attempt still
			// counts toward benchmark_count and is immediately expired
			// since it never becomes a reference point.
			newKey.Model.Expire()

			if err := c.keyRepo.Expire(ctx, newKey.Model.ID); err != nil {
				c.logger.Errorf("brc: expire discarded key: %v", err)
			}
		} else {
			c.currentKey.Model.Expire()

			if err := c.keyRepo.Expire(ctx, c.currentKey.Model.ID); err != nil {
				c.logger.Errorf("brc: expire superseded key: %v", err)
			}

			c.currentKey = newKey
			c.keyHistory = append(c.keyHistory, newKey)
		}
	}

	c.benchmarkCount++
	c.lastBenchmarkTime = time.Now().UTC()
}

// dispatchDataset fans out one Request/Response per dataset URI, preferring
// the bounded-parallel path when the store tolerates concurrent writers.
func (c *Client) dispatchDataset(ctx context.Context) (*model.BatchRequest, error) {
	batch, done, err := c.rc.SendURIsAsync(ctx, c.cfg.Dataset)
	if err == nil {
		if waitErr := <-done; waitErr != nil {
			return nil, waitErr
		}

		return batch, nil
	}

	if !errors.Is(err, apperr.ErrUnsupportedBackend) {
		return nil, err
	}

	return c.rc.SendURIs(ctx, c.cfg.Dataset)
}

func (c *Client) buildBatchView(ctx context.Context, batchID int64) (benchmarkkey.Batch, error) {
	pairs, err := c.responseRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return benchmarkkey.Batch{}, err
	}

	byURI := make(map[string]*model.Response, len(pairs))
	allSuccessful := true

	for _, p := range pairs {
		byURI[p.Request.URI] = p.Response
		if !p.Response.Success {
			allSuccessful = false
		}
	}

	return benchmarkkey.Batch{URIs: c.cfg.Dataset, ResponseByURI: byURI, AllSuccessful: allSuccessful}, nil
}

// SendURIWithKey is the hot path
func (c *Client) SendURIWithKey(ctx context.Context, uri string, suppliedKey *benchmarkkey.Key) Result {
	ctx, span := tracing.Start(ctx, "brc.send_uri_with_key")
	defer span.End()

	current := c.CurrentKey()

	if current == nil {
		return c.shape(ctx, Result{KeyError: reasonPtr(apperr.ReasonNoKeyYet, "no benchmark key has been minted yet")}, nil)
	}

	if ok, verr := current.ValidAgainstKey(suppliedKey); !ok {
		c.recordFailure(ctx)

		return c.shape(ctx, Result{KeyError: asKeyValidityError(verr)}, current)
	}

	resp, err := c.rc.SendURI(ctx, uri, nil)
	if err != nil {
		c.logger.Errorf("brc: sendURI failed: %v", err)

		return c.shape(ctx, Result{ResponseError: reasonPtr(apperr.ReasonBackendError, err.Error())}, current)
	}

	if err := c.responseRepo.SetBenchmarkKeyID(ctx, resp.ID, current.Model.ID); err != nil {
		c.logger.Errorf("brc: set response benchmark_key_id: %v", err)
	}

	resp.BenchmarkKeyID = &current.Model.ID

	result := Result{Labels: resp.Labels(), Response: resp}

	if ok2, verr2 := current.ValidAgainstResponse(resp); !ok2 {
		c.recordFailure(ctx)

		result.ResponseError = asKeyValidityError(verr2)
	} else {
		c.recordSuccess(ctx)
	}

	return c.shape(ctx, result, current)
}

func (c *Client) recordFailure(ctx context.Context) {
	atomic.AddInt64(&c.invalidStateCount, 1)

	_, _ = c.breaker.Execute(func() (interface{}, error) {
		return nil, errFailCountTrigger
	})
}

func (c *Client) recordSuccess(ctx context.Context) {
	_, _ = c.breaker.Execute(func() (interface{}, error) {
		return nil, nil
	})
}

var errFailCountTrigger = errors.New("brc: key/response validation failed")

// shape applies step 5's severity policy.
func (c *Client) shape(ctx context.Context, result Result, current *benchmarkkey.Key) Result {
	severity := c.cfg.Severity
	if current != nil {
		severity = current.Severity
	}

	switch severity {
	case model.SeverityException:
		return Result{KeyError: result.KeyError, ResponseError: result.ResponseError}
	case model.SeverityWarning:
		if (result.KeyError != nil || result.ResponseError != nil) && c.webhookPub != nil && c.cfg.WarningCallbackURI != "" {
			go c.webhookPub.Publish(context.Background(), c.cfg.WarningCallbackURI, result)
		}

		return result
	case model.SeverityInfo:
		if result.KeyError != nil {
			c.logger.Warnf("brc: key_error: %s", result.KeyError.Error())
		}

		if result.ResponseError != nil {
			c.logger.Warnf("brc: response_error: %s", result.ResponseError.Error())
		}

		return result
	default: // none
		return result
	}
}

func reasonPtr(reason apperr.Reason, message string) *apperr.KeyValidityError {
	return &apperr.KeyValidityError{Reason: reason, Message: message}
}

func asKeyValidityError(err error) *apperr.KeyValidityError {
	var kve apperr.KeyValidityError
	if errors.As(err, &kve) {
		return &kve
	}

	return &apperr.KeyValidityError{Message: err.Error()}
}

// CurrentKey returns an atomic snapshot of the BRC's current key (nil
// before the first successful benchmark).
func (c *Client) CurrentKey() *benchmarkkey.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.currentKey
}

func (c *Client) currentKeyID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.currentKey == nil {
		return 0
	}

	return c.currentKey.Model.ID
}

// KeyAtOrBefore returns the most recent key this BRC has ever held whose
// CreatedAt is ≤ t, or nil.
func (c *Client) KeyAtOrBefore(t time.Time) *benchmarkkey.Key {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var best *benchmarkkey.Key

	for _, k := range c.keyHistory {
		if !k.Model.CreatedAt.After(t) {
			if best == nil || k.Model.CreatedAt.After(best.Model.CreatedAt) {
				best = k
			}
		}
	}

	return best
}

// ServiceID, SeverityID, Config, CreatedAt, BenchmarkCount,
// LastBenchmarkTime, and InvalidStateCount back GET /benchmark/:id
// introspection.
func (c *Client) ServiceID() int64   { return c.serviceID }
func (c *Client) SeverityID() int64  { return c.severityID }
func (c *Client) Config() Config     { return c.cfg }
func (c *Client) CreatedAt() time.Time { return c.createdAt }

func (c *Client) BenchmarkCount() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.benchmarkCount
}

func (c *Client) LastBenchmarkTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastBenchmarkTime
}

func (c *Client) InvalidStateCount() int64 {
	return atomic.LoadInt64(&c.invalidStateCount)
}
