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

// RequestRepository persists one call against one URI.
type RequestRepository struct {
	store *Store
}

// NewRequestRepository returns a repository bound to s.
func NewRequestRepository(s *Store) *RequestRepository { return &RequestRepository{store: s} }

// Create inserts a Request row timestamped before provider dispatch, to
// preserve Request-then-Response ordering.
func (r *RequestRepository) Create(ctx context.Context, serviceID int64, batchRequestID *int64, uri string, createdAt time.Time) (*model.Request, error) {
	res, err := r.store.qb.Insert("requests").
		Columns("service_id", "batch_request_id", "uri", "created_at").
		Values(serviceID, batchRequestID, uri, createdAt.UTC()).
		RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create request: %w", err)
	}

	return &model.Request{
		ID:             id,
		ServiceID:      serviceID,
		BatchRequestID: batchRequestID,
		URI:            uri,
		CreatedAt:      createdAt.UTC(),
	}, nil
}

// GetByID loads a Request by id.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*model.Request, error) {
	row := r.store.qb.Select("id", "service_id", "batch_request_id", "uri", "created_at").
		From("requests").Where(sq.Eq{"id": id}).RunWith(r.store.db).QueryRowContext(ctx)

	return scanRequest(row)
}

// ListByBatch returns every Request belonging to batchID, in no particular
// order.
func (r *RequestRepository) ListByBatch(ctx context.Context, batchID int64) ([]*model.Request, error) {
	rows, err := r.store.qb.Select("id", "service_id", "batch_request_id", "uri", "created_at").
		From("requests").Where(sq.Eq{"batch_request_id": batchID}).RunWith(r.store.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list requests by batch: %w", err)
	}
	defer rows.Close()

	var out []*model.Request

	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, req)
	}

	return out, rows.Err()
}

func scanRequest(row sq.RowScanner) (*model.Request, error) {
	var (
		req            model.Request
		batchRequestID sql.NullInt64
	)

	if err := row.Scan(&req.ID, &req.ServiceID, &batchRequestID, &req.URI, &req.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: request", apperr.ErrEntityNotFound)
		}

		return nil, err
	}

	if batchRequestID.Valid {
		req.BatchRequestID = &batchRequestID.Int64
	}

	return &req, nil
}
