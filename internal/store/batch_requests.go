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

// BatchRequestRepository persists the BatchRequest grouping entity,
// immutable once created.
type BatchRequestRepository struct {
	store *Store
}

// NewBatchRequestRepository returns a repository bound to s.
func NewBatchRequestRepository(s *Store) *BatchRequestRepository {
	return &BatchRequestRepository{store: s}
}

// Create inserts a fresh BatchRequest row stamped with createdAt (UTC).
func (r *BatchRequestRepository) Create(ctx context.Context, createdAt time.Time) (*model.BatchRequest, error) {
	res, err := r.store.qb.Insert("batch_requests").Columns("created_at").Values(createdAt.UTC()).
		RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create batch_request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create batch_request: %w", err)
	}

	return &model.BatchRequest{ID: id, CreatedAt: createdAt.UTC()}, nil
}

// GetByID loads a BatchRequest by id.
func (r *BatchRequestRepository) GetByID(ctx context.Context, id int64) (*model.BatchRequest, error) {
	row := r.store.qb.Select("id", "created_at").From("batch_requests").Where(sq.Eq{"id": id}).
		RunWith(r.store.db).QueryRowContext(ctx)

	var br model.BatchRequest

	if err := row.Scan(&br.ID, &br.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: batch_request", apperr.ErrEntityNotFound)
		}

		return nil, err
	}

	return &br, nil
}
