package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kaloriq-go/internal/database/migrations"
	"kaloriq-go/internal/kq"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHealthStore implements kq.HealthStore and kq.OperationLog on SQLite.
type SQLiteHealthStore struct {
	db        *sql.DB
	queries   *Queries
	path      string
	available bool
}

// NewSQLiteHealthStore opens the database at path, which can be a file path
// or ":memory:". available=false makes every health operation fail with
// kq.ErrHealthDataUnavailable, as on a device without health data.
func NewSQLiteHealthStore(path string, available bool) (*SQLiteHealthStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteHealthStore{
		db:        db,
		queries:   New(db),
		path:      path,
		available: available,
	}, nil
}

// NewSQLiteHealthStoreFromDB wraps an existing, already configured connection.
func NewSQLiteHealthStoreFromDB(db *sql.DB, available bool) *SQLiteHealthStore {
	return &SQLiteHealthStore{db: db, queries: New(db), available: available}
}

// OpenConnection opens and configures a SQLite connection. path can be a
// file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every new connection to :memory: is a fresh, empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

func (s *SQLiteHealthStore) IsAvailable() bool { return s.available }

func (s *SQLiteHealthStore) RequestAuthorization(ctx context.Context, write, read []kq.Metric) (bool, error) {
	if !s.available {
		return false, kq.ErrHealthDataUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	now := toNanos(time.Now())
	grants := []struct {
		access  kq.Access
		metrics []kq.Metric
	}{
		{kq.AccessWrite, write},
		{kq.AccessRead, read},
	}
	for _, g := range grants {
		for _, m := range g.metrics {
			if err := qtx.UpsertAuthorization(ctx, string(m), string(g.access), now); err != nil {
				return false, fmt.Errorf("recording %s authorization for %s: %w", g.access, m, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteHealthStore) IsAuthorized(ctx context.Context, metric kq.Metric, access kq.Access) (bool, error) {
	if !s.available {
		return false, kq.ErrHealthDataUnavailable
	}
	ok, err := s.queries.HasAuthorization(ctx, string(metric), string(access))
	if err != nil {
		return false, fmt.Errorf("checking authorization: %w", err)
	}
	return ok, nil
}

func (s *SQLiteHealthStore) Save(ctx context.Context, samples []kq.Sample) error {
	if !s.available {
		return kq.ErrHealthDataUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)
	for _, sample := range samples {
		if _, err := qtx.InsertSample(ctx, SampleRow{
			ID:        sample.ID,
			Metric:    string(sample.Metric),
			Value:     sample.Value,
			StartAt:   toNanos(sample.Start),
			EndAt:     toNanos(sample.End),
			Source:    sample.Source,
			CreatedAt: toNanos(sample.CreatedAt),
		}); err != nil {
			return fmt.Errorf("inserting sample %s: %w", sample.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteHealthStore) Query(ctx context.Context, metric kq.Metric, start, end time.Time) ([]kq.Sample, error) {
	if !s.available {
		return nil, kq.ErrHealthDataUnavailable
	}
	rows, err := s.queries.ListSamples(ctx, string(metric), toNanos(start), toNanos(end))
	if err != nil {
		return nil, fmt.Errorf("querying %s samples: %w", metric, err)
	}

	samples := make([]kq.Sample, len(rows))
	for i, r := range rows {
		samples[i] = kq.Sample{
			ID:        r.ID,
			Metric:    kq.Metric(r.Metric),
			Value:     r.Value,
			Start:     fromNanos(r.StartAt),
			End:       fromNanos(r.EndAt),
			Source:    r.Source,
			CreatedAt: fromNanos(r.CreatedAt),
		}
	}
	return samples, nil
}

// Operation tracking

func (s *SQLiteHealthStore) CreateOperation(ctx context.Context, operation, parameters string) (*kq.OperationRecord, error) {
	row, err := s.queries.InsertOperation(ctx, toNanos(time.Now()), operation, parameters)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return operationRecord(row), nil
}

func (s *SQLiteHealthStore) FinishOperation(ctx context.Context, id int64, status string) error {
	ok, err := s.queries.UpdateOperationFinished(ctx, id, toNanos(time.Now()), status)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if !ok {
		return fmt.Errorf("finishing operation %d: %w", id, kq.ErrNotFound)
	}
	return nil
}

func (s *SQLiteHealthStore) ListOperations(ctx context.Context, limit int) ([]*kq.OperationRecord, error) {
	rows, err := s.queries.ListOperations(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	ops := make([]*kq.OperationRecord, len(rows))
	for i, r := range rows {
		ops[i] = operationRecord(r)
	}
	return ops, nil
}

func operationRecord(r OperationRow) *kq.OperationRecord {
	op := &kq.OperationRecord{
		ID:         r.ID,
		StartedAt:  fromNanos(r.StartedAt),
		Operation:  r.Operation,
		Parameters: r.Parameters,
		Status:     r.Status,
	}
	if r.FinishedAt.Valid {
		t := fromNanos(r.FinishedAt.Int64)
		op.FinishedAt = &t
	}
	return op
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteHealthStore) Path() string {
	return s.path
}

// DB exposes the underlying connection for stores sharing the same file.
func (s *SQLiteHealthStore) DB() *sql.DB {
	return s.db
}

// MigrateUp applies any pending schema migrations.
func (s *SQLiteHealthStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteHealthStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a consistent copy of the database to destPath using VACUUM INTO.
func (s *SQLiteHealthStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

func (s *SQLiteHealthStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ kq.HealthStore  = (*SQLiteHealthStore)(nil)
	_ kq.OperationLog = (*SQLiteHealthStore)(nil)
)
