package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// ServiceRepository reads the closed, seeded Service enumeration.
type ServiceRepository struct {
	store *Store
}

// NewServiceRepository returns a repository bound to s.
func NewServiceRepository(s *Store) *ServiceRepository { return &ServiceRepository{store: s} }

// GetByName looks up a Service by its closed-set name.
func (r *ServiceRepository) GetByName(ctx context.Context, name model.ServiceName) (*model.Service, error) {
	row := r.store.qb.Select("id", "name").From("services").Where(sq.Eq{"name": string(name)}).
		RunWith(r.store.db).QueryRowContext(ctx)

	return scanService(row)
}

// GetByID looks up a Service by id.
func (r *ServiceRepository) GetByID(ctx context.Context, id int64) (*model.Service, error) {
	row := r.store.qb.Select("id", "name").From("services").Where(sq.Eq{"id": id}).
		RunWith(r.store.db).QueryRowContext(ctx)

	return scanService(row)
}

func scanService(row sq.RowScanner) (*model.Service, error) {
	var (
		svc  model.Service
		name string
	)

	if err := row.Scan(&svc.ID, &name); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: service", apperr.ErrUnknownService)
		}

		return nil, err
	}

	svc.Name = model.ServiceName(name)

	return &svc, nil
}
