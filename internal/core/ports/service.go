package ports

import (
	"context"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/google/uuid"
)

// DiaryService defines the business logic interface for the glucose diary
type DiaryService interface {
	// CreateRecord validates and stores a new record
	CreateRecord(ctx context.Context, req RecordRequest) (*RecordReport, error)

	// UpdateRecord replaces an existing record, returns domain.ErrRecordNotFound for unknown ids
	UpdateRecord(ctx context.Context, recordID uuid.UUID, req RecordRequest) (*RecordReport, error)

	// DeleteRecord removes a record, returns domain.ErrRecordNotFound for unknown ids
	DeleteRecord(ctx context.Context, recordID uuid.UUID) error

	// GetRecord returns a single record with its glucose assessment
	GetRecord(ctx context.Context, recordID uuid.UUID) (*RecordReport, error)

	// ListRecords returns every record, newest first
	ListRecords(ctx context.Context) ([]RecordReport, error)

	// ListDays returns the diary grouped by calendar day, newest day first
	ListDays(ctx context.Context) ([]DayReport, error)

	// GetDay returns one calendar day with its sessions
	GetDay(ctx context.Context, day time.Time) (*DayReport, error)

	// CheckRecord runs every validation check without storing anything
	CheckRecord(ctx context.Context, req RecordRequest) ([]*domain.ValidationError, error)

	// ClearRecords removes every record
	ClearRecords(ctx context.Context) error

	// ResetToSampleData replaces the diary with the demonstration records
	ResetToSampleData(ctx context.Context) (int, error)
}

// RecordRequest carries the user input for a record.
// Nil fields mean "not provided".
type RecordRequest struct {
	Date         *time.Time          `json:"date,omitempty"`
	SugarLevel   *float64            `json:"sugar_level,omitempty"`
	InsulinType  *domain.InsulinType `json:"insulin_type,omitempty"`
	InsulinUnits *int                `json:"insulin_units,omitempty"`
	Food         *string             `json:"food,omitempty"`
	BreadUnits   *float64            `json:"bread_units,omitempty"`
}

// RecordReport is a record together with its classification
type RecordReport struct {
	domain.Record
	Assessment     domain.GlucoseAssessment `json:"assessment"`
	Color          string                   `json:"color"`
	DidTakeInsulin bool                     `json:"did_take_insulin"`
	HasMeal        bool                     `json:"has_meal"`
}

// SessionReport is one meal episode with its totals
type SessionReport struct {
	Date         time.Time      `json:"date"`
	Records      []RecordReport `json:"records"`
	TotalCarbs   float64        `json:"total_carbs"`
	TotalInsulin int            `json:"total_insulin"`
}

// DayReport is one calendar day with its sessions and totals
type DayReport struct {
	Date         time.Time       `json:"date"`
	Sessions     []SessionReport `json:"sessions"`
	TotalCarbs   float64         `json:"total_carbs"`
	TotalInsulin int             `json:"total_insulin"`
}

// ChangeType names a committed diary change
type ChangeType string

const (
	ChangeRecordCreated  ChangeType = "record_created"
	ChangeRecordUpdated  ChangeType = "record_updated"
	ChangeRecordDeleted  ChangeType = "record_deleted"
	ChangeRecordsCleared ChangeType = "records_cleared"
	ChangeRecordsReset   ChangeType = "records_reset"
)

// DiaryChange describes one committed write. Record is set for creates and
// updates, RecordID for deletes and Count for bulk changes.
type DiaryChange struct {
	Type     ChangeType    `json:"type"`
	RecordID *uuid.UUID    `json:"record_id,omitempty"`
	Record   *RecordReport `json:"record,omitempty"`
	Count    int           `json:"count,omitempty"`
	At       time.Time     `json:"at"`
}
