package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// ResponseRepository persists the raw vendor body and success flag for a
// Request. Each Request owns exactly one Response.
type ResponseRepository struct {
	store *Store
}

// NewResponseRepository returns a repository bound to s.
func NewResponseRepository(s *Store) *ResponseRepository { return &ResponseRepository{store: s} }

// Create inserts a Response row timestamped after provider dispatch
// completes, preserving Request-then-Response ordering.
func (r *ResponseRepository) Create(ctx context.Context, requestID int64, body []byte, success bool, createdAt time.Time) (*model.Response, error) {
	res, err := r.store.qb.Insert("responses").
		Columns("request_id", "body", "success", "created_at").
		Values(requestID, body, success, createdAt.UTC()).
		RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create response: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create response: %w", err)
	}

	return &model.Response{
		ID:        id,
		RequestID: requestID,
		Body:      body,
		Success:   success,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// SetBenchmarkKeyID records which BenchmarkKey a Response was validated
// against.
func (r *ResponseRepository) SetBenchmarkKeyID(ctx context.Context, responseID, keyID int64) error {
	_, err := r.store.qb.Update("responses").Set("benchmark_key_id", keyID).
		Where(sq.Eq{"id": responseID}).RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: set response benchmark_key_id: %w", err)
	}

	return nil
}

// GetByRequestID loads the Response owned by requestID.
func (r *ResponseRepository) GetByRequestID(ctx context.Context, requestID int64) (*model.Response, error) {
	row := r.store.qb.Select("id", "request_id", "benchmark_key_id", "body", "success", "created_at").
		From("responses").Where(sq.Eq{"request_id": requestID}).RunWith(r.store.db).QueryRowContext(ctx)

	return scanResponse(row)
}

// RequestResponse pairs a Request with its Response for the batch-level
// comparisons the BenchmarkKey equivalence engine performs.
type RequestResponse struct {
	Request  *model.Request
	Response *model.Response
}

// ListByBatch returns every (Request, Response) pair belonging to batchID,
// joined by request_id.
func (r *ResponseRepository) ListByBatch(ctx context.Context, batchID int64) ([]RequestResponse, error) {
	rows, err := r.store.qb.
		Select(
			"requests.id", "requests.service_id", "requests.batch_request_id", "requests.uri", "requests.created_at",
			"responses.id", "responses.request_id", "responses.benchmark_key_id", "responses.body", "responses.success", "responses.created_at",
		).
		From("requests").
		Join("responses ON responses.request_id = requests.id").
		Where(sq.Eq{"requests.batch_request_id": batchID}).
		RunWith(r.store.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list responses by batch: %w", err)
	}
	defer rows.Close()

	var out []RequestResponse

	for rows.Next() {
		var (
			req            model.Request
			batchRequestID sql.NullInt64
			resp           model.Response
			keyID          sql.NullInt64
		)

		if err := rows.Scan(
			&req.ID, &req.ServiceID, &batchRequestID, &req.URI, &req.CreatedAt,
			&resp.ID, &resp.RequestID, &keyID, &resp.Body, &resp.Success, &resp.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan response pair: %w", err)
		}

		if batchRequestID.Valid {
			req.BatchRequestID = &batchRequestID.Int64
		}

		if keyID.Valid {
			resp.BenchmarkKeyID = &keyID.Int64
		}

		out = append(out, RequestResponse{Request: &req, Response: &resp})
	}

	return out, rows.Err()
}

func scanResponse(row sq.RowScanner) (*model.Response, error) {
	var (
		resp  model.Response
		keyID sql.NullInt64
	)

	if err := row.Scan(&resp.ID, &resp.RequestID, &keyID, &resp.Body, &resp.Success, &resp.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: response", apperr.ErrEntityNotFound)
		}

		return nil, err
	}

	if keyID.Valid {
		resp.BenchmarkKeyID = &keyID.Int64
	}

	return &resp, nil
}
