package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// SeverityRepository reads the closed, seeded Severity enumeration.
type SeverityRepository struct {
	store *Store
}

// NewSeverityRepository returns a repository bound to s.
func NewSeverityRepository(s *Store) *SeverityRepository { return &SeverityRepository{store: s} }

// GetByName looks up a Severity by its closed-set name.
func (r *SeverityRepository) GetByName(ctx context.Context, name model.SeverityName) (*model.Severity, error) {
	row := r.store.qb.Select("id", "name").From("severities").Where(sq.Eq{"name": string(name)}).
		RunWith(r.store.db).QueryRowContext(ctx)

	return scanSeverity(row)
}

// GetByID looks up a Severity by id.
func (r *SeverityRepository) GetByID(ctx context.Context, id int64) (*model.Severity, error) {
	row := r.store.qb.Select("id", "name").From("severities").Where(sq.Eq{"id": id}).
		RunWith(r.store.db).QueryRowContext(ctx)

	return scanSeverity(row)
}

func scanSeverity(row sq.RowScanner) (*model.Severity, error) {
	var (
		sev  model.Severity
		name string
	)

	if err := row.Scan(&sev.ID, &name); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: severity", apperr.ErrUnknownSeverity)
		}

		return nil, err
	}

	sev.Name = model.SeverityName(name)

	return &sev, nil
}
