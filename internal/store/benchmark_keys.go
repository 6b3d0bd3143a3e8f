package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// BenchmarkKeyRepository persists BenchmarkKey rows: the
// reference point minted by a completed benchmark batch.
type BenchmarkKeyRepository struct {
	store *Store
}

// NewBenchmarkKeyRepository returns a repository bound to s.
func NewBenchmarkKeyRepository(s *Store) *BenchmarkKeyRepository {
	return &BenchmarkKeyRepository{store: s}
}

// Create inserts key and returns it with its minted ID.
func (r *BenchmarkKeyRepository) Create(ctx context.Context, key *model.BenchmarkKey) (*model.BenchmarkKey, error) {
	ctx, span := startQuerySpan(ctx, "benchmark_keys.create")
	defer span.End()

	start := time.Now()
	defer r.store.logQuery(ctx, "benchmark_keys.create", start)

	res, err := r.store.qb.Insert("benchmark_keys").
		Columns("service_id", "batch_request_id", "severity_id", "created_at", "expired",
			"delta_labels", "delta_confidence", "max_labels", "min_confidence", "expected_labels").
		Values(key.ServiceID, key.BatchRequestID, key.SeverityID, key.CreatedAt.UTC(), key.Expired,
			key.DeltaLabels, key.DeltaConfidence, key.MaxLabels, key.MinConfidence, encodeExpectedLabels(key.ExpectedLabels)).
		RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: create benchmark_key: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: create benchmark_key: %w", err)
	}

	out := *key
	out.ID = id

	return &out, nil
}

// GetByID loads a BenchmarkKey by id.
func (r *BenchmarkKeyRepository) GetByID(ctx context.Context, id int64) (*model.BenchmarkKey, error) {
	ctx, span := startQuerySpan(ctx, "benchmark_keys.get_by_id")
	defer span.End()

	start := time.Now()
	defer r.store.logQuery(ctx, "benchmark_keys.get_by_id", start)

	row := r.store.qb.Select("id", "service_id", "batch_request_id", "severity_id", "created_at", "expired",
		"delta_labels", "delta_confidence", "max_labels", "min_confidence", "expected_labels").
		From("benchmark_keys").Where(sq.Eq{"id": id}).RunWith(r.store.db).QueryRowContext(ctx)

	return scanBenchmarkKey(row)
}

// Expire marks the key as expired. The flag never resets once set.
func (r *BenchmarkKeyRepository) Expire(ctx context.Context, id int64) error {
	_, err := r.store.qb.Update("benchmark_keys").Set("expired", true).
		Where(sq.Eq{"id": id}).RunWith(r.store.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: expire benchmark_key: %w", err)
	}

	return nil
}

func scanBenchmarkKey(row sq.RowScanner) (*model.BenchmarkKey, error) {
	var (
		key            model.BenchmarkKey
		expectedLabels string
	)

	if err := row.Scan(&key.ID, &key.ServiceID, &key.BatchRequestID, &key.SeverityID, &key.CreatedAt, &key.Expired,
		&key.DeltaLabels, &key.DeltaConfidence, &key.MaxLabels, &key.MinConfidence, &expectedLabels); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: benchmark_key", apperr.ErrUnknownKey)
		}

		return nil, err
	}

	key.ExpectedLabels = decodeExpectedLabels(expectedLabels)

	return &key, nil
}

// encodeExpectedLabels/decodeExpectedLabels store the ordered label set as
// a comma-joined string. Labels are not checked for commas; a label that
// contains one is split into several labels on decode.
func encodeExpectedLabels(labels []string) string {
	return strings.Join(labels, ",")
}

func decodeExpectedLabels(raw string) []string {
	if raw == "" {
		return nil
	}

	return strings.Split(raw, ",")
}
