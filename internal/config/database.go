package config

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

const diaryBlobsSchema = `
CREATE TABLE IF NOT EXISTS diary_blobs (
	key        TEXT PRIMARY KEY,
	payload    BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// InitDatabase creates the diary schema if it does not exist yet
func InitDatabase(db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(diaryBlobsSchema); err != nil {
		return fmt.Errorf("failed to create diary_blobs table: %w", err)
	}
	logger.Info("database schema initialized")
	return nil
}

// ConnectDatabase establishes a connection to PostgreSQL with retry logic
func ConnectDatabase(databaseURL string, maxRetries int, retryDelay time.Duration, logger *zap.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *sql.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			logger.Warn("failed to open database connection",
				zap.Int("attempt", i+1), zap.Int("max_retries", maxRetries), zap.Error(err))
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		if err = db.Ping(); err != nil {
			logger.Warn("failed to ping database",
				zap.Int("attempt", i+1), zap.Int("max_retries", maxRetries), zap.Error(err))
			db.Close()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		logger.Info("database connection established")
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database: %w", err)
}
