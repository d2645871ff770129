package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresBlobStore keeps blobs in the diary_blobs table of a PostgreSQL
// database. The schema is created by config.InitDatabase.
type PostgresBlobStore struct {
	db *sql.DB
}

// NewPostgresBlobStore wraps an open connection pool
func NewPostgresBlobStore(db *sql.DB) *PostgresBlobStore {
	return &PostgresBlobStore{db: db}
}

func (s *PostgresBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM diary_blobs WHERE key = $1`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *PostgresBlobStore) Put(ctx context.Context, key string, blob []byte) error {
	query := `
		INSERT INTO diary_blobs (key, payload, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	_, err := s.db.ExecContext(ctx, query, key, blob, time.Now().UTC())
	return err
}

func (s *PostgresBlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM diary_blobs WHERE key = $1`, key)
	return err
}

func (s *PostgresBlobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresBlobStore) Close() error {
	return s.db.Close()
}

var _ BlobStore = (*PostgresBlobStore)(nil)
