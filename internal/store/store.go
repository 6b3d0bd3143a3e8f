// Package store is the relational persistence layer: six tables (four entity
// tables plus the Service/Severity seed enums), reachable through database/sql behind a
// squirrel query builder. Two dialects are supported from one DSN scheme
// prefix: `sqlite://` (mattn/go-sqlite3, the single-writer default) and
// `postgres://` (lib/pq, the concurrent-writer backend needed for async
// batch dispatch).
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/trace"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
	"github.com/lerian-labs/icvsb-gateway/internal/tracing"
)

//go:embed migrations/0001_init.sql
var initMigration string

// Dialect distinguishes the two supported backends.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store is the shared connection handle for every repository in this
// package. It is safe for concurrent use; DialectSQLite instances are the
// "single-writer" store that async batch dispatch must reject.
type Store struct {
	db       *sql.DB
	dialect  Dialect
	qb       sq.StatementBuilderType
	queryLog mlog.Logger
}

// Open parses dsn's scheme, opens the driver, runs the embedded migration,
// and seeds the closed Service/Severity enumerations if absent. queryLog, if
// non-nil, receives the timing lines written by logQuery instead of the
// ambient request logger, so store traffic can be routed to its own sink.
// Only BenchmarkKeyRepository.Create and GetByID call logQuery, and it logs
// at debug level; the other repository calls write no timing.
func Open(ctx context.Context, dsn string, queryLog mlog.Logger) (*Store, error) {
	dialect, driverName, driverDSN, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, driverDSN)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driverName, err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // mirrors the single-writer constraint documents
	}

	qb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if dialect == DialectPostgres {
		qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}

	s := &Store{db: db, dialect: dialect, qb: qb, queryLog: queryLog}

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}

	if err := s.seed(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Dialect reports which backend this Store talks to.
func (s *Store) Dialect() Dialect { return s.dialect }

// SupportsConcurrentWriters reports whether this store can safely service
// sendURIsAsync: only a Postgres-backed store can.
func (s *Store) SupportsConcurrentWriters() bool { return s.dialect == DialectPostgres }

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range splitStatements(initMigration) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}

	return nil
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")

	out := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}

	return out
}

func (s *Store) seed(ctx context.Context) error {
	services := []model.ServiceName{model.ServiceGoogle, model.ServiceAmazon, model.ServiceAzure}
	for _, name := range services {
		if err := s.seedRow(ctx, "services", string(name)); err != nil {
			return err
		}
	}

	severities := []model.SeverityName{model.SeverityException, model.SeverityWarning, model.SeverityInfo, model.SeverityNone}
	for _, name := range severities {
		if err := s.seedRow(ctx, "severities", string(name)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) seedRow(ctx context.Context, table, name string) error {
	var count int

	row := s.qb.Select("COUNT(*)").From(table).Where(sq.Eq{"name": name}).RunWith(s.db).QueryRowContext(ctx)
	if err := row.Scan(&count); err != nil {
		return fmt.Errorf("store: seed %s: %w", table, err)
	}

	if count > 0 {
		return nil
	}

	_, err := s.qb.Insert(table).Columns("name").Values(name).RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("store: seed %s: %w", table, err)
	}

	return nil
}

func parseDSN(dsn string) (dialect Dialect, driverName, driverDSN string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return DialectSQLite, "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, "postgres", dsn, nil
	default:
		return "", "", "", fmt.Errorf("store: unsupported dsn scheme: %q", dsn)
	}
}

// translateErr maps a driver-level error into the apperr sentinel family
// at the repository boundary.
func translateErr(err error, entityType string) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		return apperr.Translate(fmt.Errorf("%w: %s", apperr.ErrEntityNotFound, entityType), entityType)
	}

	return err
}

// logQuery records one repository call's duration against s.queryLog when a
// dedicated store log sink was configured, falling back to the ambient
// request logger otherwise.
func (s *Store) logQuery(ctx context.Context, op string, start time.Time) {
	logger := s.queryLog
	if logger == nil {
		logger = mlog.FromContext(ctx)
	}

	logger.Debugf("store: %s took %s", op, time.Since(start))
}

// startQuerySpan opens a child span around one repository call, scoped to
// the store boundary rather than the calling service layer.
func startQuerySpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return tracing.Start(ctx, "store."+op)
}
