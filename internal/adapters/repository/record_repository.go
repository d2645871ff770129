package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultDiaryKey is the blob key the diary is stored under
const DefaultDiaryKey = "glucose-diary/records"

// BreakerSettings returns the circuit breaker settings used for storage and messaging
func BreakerSettings(name string, maxRequests uint32, interval, timeout time.Duration) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
}

// RecordRepository implements ports.RecordRepository on top of a BlobStore.
// Includes retry logic and circuit breaker for resilience.
type RecordRepository struct {
	store      BlobStore
	key        string
	cb         *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// RepositoryOption configures a RecordRepository
type RepositoryOption func(*RecordRepository)

// WithRetry overrides the retry policy (3 attempts, 1s apart by default)
func WithRetry(maxRetries int, delay time.Duration) RepositoryOption {
	return func(r *RecordRepository) {
		if maxRetries > 0 {
			r.maxRetries = maxRetries
		}
		r.retryDelay = delay
	}
}

// WithBreaker replaces the default circuit breaker settings
func WithBreaker(settings gobreaker.Settings) RepositoryOption {
	return func(r *RecordRepository) {
		r.cb = gobreaker.NewCircuitBreaker(settings)
	}
}

func WithRepositoryLogger(logger *zap.Logger) RepositoryOption {
	return func(r *RecordRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRecordRepository creates a repository that stores the diary under key
func NewRecordRepository(store BlobStore, key string, opts ...RepositoryOption) *RecordRepository {
	if key == "" {
		key = DefaultDiaryKey
	}
	r := &RecordRepository{
		store:      store,
		key:        key,
		cb:         gobreaker.NewCircuitBreaker(BreakerSettings("storage", 5, 60*time.Second, 30*time.Second)),
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// executeWithRetry executes a storage operation with retry logic
func (r *RecordRepository) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		// not transient
		if errors.Is(err, ErrCorruptSnapshot) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.logger.Warn("storage operation failed",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", r.maxRetries),
			zap.Error(err),
		)
		if i < r.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.retryDelay):
			}
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", r.maxRetries, lastErr)
}

// LoadRecords reads the diary. A diary that was never saved is empty.
func (r *RecordRepository) LoadRecords(ctx context.Context) ([]domain.Record, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		var records []domain.Record
		err := r.executeWithRetry(ctx, func() error {
			blob, err := r.store.Get(ctx, r.key)
			if errors.Is(err, ErrBlobNotFound) {
				records = []domain.Record{}
				return nil
			}
			if err != nil {
				return err
			}
			records, err = decodeSnapshot(blob)
			return err
		})
		if err != nil {
			return nil, err
		}
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Record), nil
}

// SaveRecords replaces the stored diary with records
func (r *RecordRepository) SaveRecords(ctx context.Context, records []domain.Record) error {
	blob, err := encodeSnapshot(records, r.now())
	if err != nil {
		return fmt.Errorf("failed to encode diary: %w", err)
	}

	_, err = r.cb.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			return r.store.Put(ctx, r.key, blob)
		})
	})
	return err
}

// Ping checks the underlying store
func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

var _ ports.RecordRepository = (*RecordRepository)(nil)
