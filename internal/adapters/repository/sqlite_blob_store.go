package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS diary_blobs (
	key        TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// SQLiteBlobStore keeps blobs in an embedded SQLite database
type SQLiteBlobStore struct {
	db *sql.DB
}

// NewMemorySQLiteStore creates an in-memory store, mostly useful for tests
func NewMemorySQLiteStore() (*SQLiteBlobStore, error) {
	return newSQLiteStore(":memory:")
}

// NewFileSQLiteStore creates a store backed by the database file at path
func NewFileSQLiteStore(path string) (*SQLiteBlobStore, error) {
	return newSQLiteStore(path)
}

func newSQLiteStore(dsn string) (*SQLiteBlobStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: would get its own database
	db.SetMaxOpenConns(1)

	store := &SQLiteBlobStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteBlobStore) migrate() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

func (s *SQLiteBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM diary_blobs WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *SQLiteBlobStore) Put(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO diary_blobs (key, payload, updated_at)
		VALUES (?, ?, ?)
	`, key, blob, time.Now().UTC())
	return err
}

func (s *SQLiteBlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM diary_blobs WHERE key = ?`, key)
	return err
}

func (s *SQLiteBlobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}

var _ BlobStore = (*SQLiteBlobStore)(nil)
