package database

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL used by the health store and the SQLite shared store.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries that runs inside tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// SampleRow is a samples row. Times are unix nanoseconds.
type SampleRow struct {
	ID        string
	Metric    string
	Value     float64
	StartAt   int64
	EndAt     int64
	Source    string
	CreatedAt int64
}

// OperationRow is an operations row.
type OperationRow struct {
	ID         int64
	StartedAt  int64
	FinishedAt sql.NullInt64
	Operation  string
	Parameters string
	Status     string
}

const insertSample = `INSERT OR IGNORE INTO samples (id, metric, value, start_at, end_at, source, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// InsertSample inserts r unless a sample with the same ID exists. It reports
// whether a row was written.
func (q *Queries) InsertSample(ctx context.Context, r SampleRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertSample, r.ID, r.Metric, r.Value, r.StartAt, r.EndAt, r.Source, r.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listSamples = `SELECT id, metric, value, start_at, end_at, source, created_at
FROM samples
WHERE metric = ? AND start_at >= ? AND start_at <= ?
ORDER BY start_at ASC, created_at ASC, id ASC`

func (q *Queries) ListSamples(ctx context.Context, metric string, start, end int64) ([]SampleRow, error) {
	rows, err := q.db.QueryContext(ctx, listSamples, metric, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SampleRow
	for rows.Next() {
		var r SampleRow
		if err := rows.Scan(&r.ID, &r.Metric, &r.Value, &r.StartAt, &r.EndAt, &r.Source, &r.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const upsertAuthorization = `INSERT INTO authorizations (metric, access, requested_at)
VALUES (?, ?, ?)
ON CONFLICT (metric, access) DO UPDATE SET requested_at = excluded.requested_at`

func (q *Queries) UpsertAuthorization(ctx context.Context, metric, access string, requestedAt int64) error {
	_, err := q.db.ExecContext(ctx, upsertAuthorization, metric, access, requestedAt)
	return err
}

const countAuthorization = `SELECT COUNT(*) FROM authorizations WHERE metric = ? AND access = ?`

func (q *Queries) HasAuthorization(ctx context.Context, metric, access string) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, countAuthorization, metric, access).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

const insertOperation = `INSERT INTO operations (started_at, operation, parameters, status)
VALUES (?, ?, ?, 'running')
RETURNING id, started_at, finished_at, operation, parameters, status`

func (q *Queries) InsertOperation(ctx context.Context, startedAt int64, operation, parameters string) (OperationRow, error) {
	var r OperationRow
	err := q.db.QueryRowContext(ctx, insertOperation, startedAt, operation, parameters).
		Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Operation, &r.Parameters, &r.Status)
	return r, err
}

const updateOperationFinished = `UPDATE operations SET finished_at = ?, status = ? WHERE id = ?`

func (q *Queries) UpdateOperationFinished(ctx context.Context, id int64, finishedAt int64, status string) (bool, error) {
	res, err := q.db.ExecContext(ctx, updateOperationFinished, finishedAt, status, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listOperations = `SELECT id, started_at, finished_at, operation, parameters, status
FROM operations
ORDER BY id DESC
LIMIT ?`

func (q *Queries) ListOperations(ctx context.Context, limit int64) ([]OperationRow, error) {
	rows, err := q.db.QueryContext(ctx, listOperations, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OperationRow
	for rows.Next() {
		var r OperationRow
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Operation, &r.Parameters, &r.Status); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const getSharedValue = `SELECT value FROM shared_values WHERE namespace = ? AND key = ?`

// GetSharedValue returns sql.ErrNoRows when the key is absent.
func (q *Queries) GetSharedValue(ctx context.Context, namespace, key string) ([]byte, error) {
	var v []byte
	err := q.db.QueryRowContext(ctx, getSharedValue, namespace, key).Scan(&v)
	return v, err
}

const upsertSharedValue = `INSERT INTO shared_values (namespace, key, value, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

func (q *Queries) UpsertSharedValue(ctx context.Context, namespace, key string, value []byte, updatedAt int64) error {
	_, err := q.db.ExecContext(ctx, upsertSharedValue, namespace, key, value, updatedAt)
	return err
}

const deleteSharedValue = `DELETE FROM shared_values WHERE namespace = ? AND key = ?`

func (q *Queries) DeleteSharedValue(ctx context.Context, namespace, key string) error {
	_, err := q.db.ExecContext(ctx, deleteSharedValue, namespace, key)
	return err
}

// toNanos and fromNanos convert between time.Time and the INTEGER columns.
func toNanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }
