package sharedstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kaloriq-go/internal/database"
	"kaloriq-go/internal/database/migrations"
	"kaloriq-go/internal/kq"
)

// SQLiteStore keeps shared values in the shared_values table. Each Set is a
// single-row upsert, so readers never see a partial document.
type SQLiteStore struct {
	db        *sql.DB
	queries   *database.Queries
	namespace string
	owned     bool
}

// NewSQLiteStore opens (and migrates) the database at path.
func NewSQLiteStore(path, namespace string) (*SQLiteStore, error) {
	db, err := database.OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating shared store: %w", err)
	}
	return &SQLiteStore{db: db, queries: database.New(db), namespace: namespace, owned: true}, nil
}

// NewSQLiteStoreFromDB uses an already migrated connection. Close leaves it open.
func NewSQLiteStoreFromDB(db *sql.DB, namespace string) *SQLiteStore {
	return &SQLiteStore{db: db, queries: database.New(db), namespace: namespace}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.queries.GetSharedValue(ctx, s.namespace, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", key, err)
	}
	if v == nil {
		v = []byte{}
	}
	return v, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	if err := s.queries.UpsertSharedValue(ctx, s.namespace, key, value, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if err := s.queries.DeleteSharedValue(ctx, s.namespace, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.owned && s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ kq.SharedStore = (*SQLiteStore)(nil)
