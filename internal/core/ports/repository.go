package ports

import (
	"context"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
)

// RecordRepository defines how the diary is persisted.
// The whole collection is read and written as one unit.
type RecordRepository interface {
	// LoadRecords returns the persisted collection, empty if nothing was saved yet
	LoadRecords(ctx context.Context) ([]domain.Record, error)

	// SaveRecords replaces the persisted collection
	SaveRecords(ctx context.Context, records []domain.Record) error
}

// AlertPublisher defines the interface for publishing high glucose alerts to RabbitMQ
type AlertPublisher interface {
	// PublishGlucoseAlert publishes an alert for a reading classified as high
	PublishGlucoseAlert(ctx context.Context, record domain.Record, assessment domain.GlucoseAssessment) error
}

// ChangeNotifier is told about every committed diary change.
// Implementations must not block the caller.
type ChangeNotifier interface {
	NotifyDiaryChange(change DiaryChange)
}
