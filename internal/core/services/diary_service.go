package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const alertPublishTimeout = 15 * time.Second

// DiaryService implements the diary use cases on top of a RecordStore.
// Readings classified as high are published as alerts asynchronously.
type DiaryService struct {
	store          *RecordStore
	alertPublisher ports.AlertPublisher
	notifier       ports.ChangeNotifier
	logger         *zap.Logger
}

// DiaryOption configures a DiaryService
type DiaryOption func(*DiaryService)

// WithChangeNotifier reports every committed write to n
func WithChangeNotifier(n ports.ChangeNotifier) DiaryOption {
	return func(s *DiaryService) {
		s.notifier = n
	}
}

// NewDiaryService creates a new diary service. alertPublisher may be nil.
func NewDiaryService(store *RecordStore, alertPublisher ports.AlertPublisher, logger *zap.Logger, opts ...DiaryOption) *DiaryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DiaryService{
		store:          store,
		alertPublisher: alertPublisher,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRecord validates and stores a new record
func (s *DiaryService) CreateRecord(ctx context.Context, req ports.RecordRequest) (*ports.RecordReport, error) {
	record := s.recordFromRequest(domain.NewRecord(s.store.Now()), req)

	if err := s.store.Add(ctx, record); err != nil {
		return nil, err
	}

	report := recordReport(s.store.Snapshot(), record)
	s.logRecord("record_created", report)
	s.notify(ports.DiaryChange{Type: ports.ChangeRecordCreated, Record: &report})
	s.maybePublishAlert(report)

	return &report, nil
}

// UpdateRecord replaces every field of an existing record with the request.
// A missing date keeps the stored one.
func (s *DiaryService) UpdateRecord(ctx context.Context, recordID uuid.UUID, req ports.RecordRequest) (*ports.RecordReport, error) {
	existing, ok := s.store.Get(recordID)
	if !ok {
		return nil, domain.ErrRecordNotFound
	}

	record := s.recordFromRequest(domain.Record{ID: existing.ID, Date: existing.Date}, req)

	found, err := s.store.Update(ctx, record)
	if err != nil {
		return nil, err
	}
	if !found {
		// deleted concurrently
		return nil, domain.ErrRecordNotFound
	}

	report := recordReport(s.store.Snapshot(), record)
	s.logRecord("record_updated", report)
	s.notify(ports.DiaryChange{Type: ports.ChangeRecordUpdated, Record: &report})
	s.maybePublishAlert(report)

	return &report, nil
}

func (s *DiaryService) DeleteRecord(ctx context.Context, recordID uuid.UUID) error {
	found, err := s.store.Delete(ctx, recordID)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrRecordNotFound
	}

	s.logger.Info("record deleted", zap.String("event", "record_deleted"), zap.String("record_id", recordID.String()))
	s.notify(ports.DiaryChange{Type: ports.ChangeRecordDeleted, RecordID: &recordID})
	return nil
}

func (s *DiaryService) GetRecord(ctx context.Context, recordID uuid.UUID) (*ports.RecordReport, error) {
	snap := s.store.Snapshot()
	record, ok := snap.Get(recordID)
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	report := recordReport(snap, record)
	return &report, nil
}

func (s *DiaryService) ListRecords(ctx context.Context) ([]ports.RecordReport, error) {
	snap := s.store.Snapshot()
	records := snap.Records()

	reports := make([]ports.RecordReport, 0, len(records))
	for _, r := range records {
		reports = append(reports, recordReport(snap, r))
	}
	return reports, nil
}

func (s *DiaryService) ListDays(ctx context.Context) ([]ports.DayReport, error) {
	snap := s.store.Snapshot()
	days := snap.Days()

	reports := make([]ports.DayReport, 0, len(days))
	for _, d := range days {
		reports = append(reports, dayReport(snap, d))
	}
	return reports, nil
}

// GetDay returns the calendar day containing day. A day without records
// yields an empty report rather than an error.
func (s *DiaryService) GetDay(ctx context.Context, day time.Time) (*ports.DayReport, error) {
	snap := s.store.Snapshot()
	target := domain.DayOf(day, s.store.Location())

	for _, d := range snap.Days() {
		if d.Date.Equal(target) {
			report := dayReport(snap, d)
			return &report, nil
		}
	}

	return &ports.DayReport{Date: target, Sessions: []ports.SessionReport{}}, nil
}

// CheckRecord returns every validation error the request would produce
func (s *DiaryService) CheckRecord(ctx context.Context, req ports.RecordRequest) ([]*domain.ValidationError, error) {
	record := s.recordFromRequest(domain.NewRecord(s.store.Now()), req)
	return s.store.Validator().ValidationErrors(record), nil
}

func (s *DiaryService) ClearRecords(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("all records cleared", zap.String("event", "records_cleared"))
	s.notify(ports.DiaryChange{Type: ports.ChangeRecordsCleared})
	return nil
}

// ResetToSampleData replaces the diary with SampleRecords and returns how
// many records were stored.
func (s *DiaryService) ResetToSampleData(ctx context.Context) (int, error) {
	samples := SampleRecords(s.store.Now(), s.store.Location())
	if err := s.store.ReplaceAll(ctx, samples); err != nil {
		return 0, fmt.Errorf("failed to reset sample data: %w", err)
	}
	s.logger.Info("sample data loaded", zap.String("event", "records_reset"), zap.Int("count", len(samples)))
	s.notify(ports.DiaryChange{Type: ports.ChangeRecordsReset, Count: len(samples)})
	return len(samples), nil
}

// recordFromRequest applies req on top of base the same way the entry form
// does: food is trimmed, a blank food becomes absent and units are dropped
// for insulin type none. Without an explicit type the record is rapid-acting
// when a dose is given and none otherwise.
func (s *DiaryService) recordFromRequest(base domain.Record, req ports.RecordRequest) domain.Record {
	r := domain.Record{ID: base.ID, Date: base.Date}
	if req.Date != nil {
		r.Date = *req.Date
	}

	r.SugarLevel = req.SugarLevel
	r.InsulinUnits = req.InsulinUnits
	r.BreadUnits = req.BreadUnits

	switch {
	case req.InsulinType != nil:
		r.InsulinType = *req.InsulinType
	case req.InsulinUnits != nil:
		r.InsulinType = domain.InsulinRapidActing
	default:
		r.InsulinType = domain.InsulinNone
	}
	if r.InsulinType == domain.InsulinNone {
		r.InsulinUnits = nil
	}

	if req.Food != nil {
		if food := strings.TrimSpace(*req.Food); food != "" {
			r.Food = &food
		}
	}

	return r.Clone()
}

func (s *DiaryService) notify(change ports.DiaryChange) {
	if s.notifier == nil {
		return
	}
	change.At = s.store.Now()
	s.notifier.NotifyDiaryChange(change)
}

func (s *DiaryService) maybePublishAlert(report ports.RecordReport) {
	if s.alertPublisher == nil || report.Assessment.Status != domain.GlucoseHigh {
		return
	}

	// Publish in the background so the request is not blocked by the broker
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), alertPublishTimeout)
		defer cancel()

		if err := s.alertPublisher.PublishGlucoseAlert(ctx, report.Record, report.Assessment); err != nil {
			s.logger.Error("failed to publish glucose alert",
				zap.String("record_id", report.ID.String()),
				zap.Error(err),
			)
			return
		}
		s.logRecord("alert_published", report)
	}()
}

func (s *DiaryService) logRecord(event string, report ports.RecordReport) {
	fields := []zap.Field{
		zap.String("event", event),
		zap.String("record_id", report.ID.String()),
		zap.Time("date", report.Date),
		zap.String("insulin_type", report.InsulinType.String()),
		zap.String("glucose_status", string(report.Assessment.Status)),
		zap.String("rule", string(report.Assessment.Rule)),
	}
	if report.SugarLevel != nil {
		fields = append(fields, zap.Float64("sugar_level", *report.SugarLevel))
	}
	if report.InsulinUnits != nil {
		fields = append(fields, zap.Int("insulin_units", *report.InsulinUnits))
	}
	if report.BreadUnits != nil {
		fields = append(fields, zap.Float64("bread_units", *report.BreadUnits))
	}
	s.logger.Info("diary record", fields...)
}

func recordReport(snap *Snapshot, r domain.Record) ports.RecordReport {
	assessment := snap.Assess(r)
	return ports.RecordReport{
		Record:         r,
		Assessment:     assessment,
		Color:          assessment.Status.Color(),
		DidTakeInsulin: r.DidTakeInsulin(),
		HasMeal:        r.HasMeal(),
	}
}

func dayReport(snap *Snapshot, d domain.Day) ports.DayReport {
	sessions := d.Sessions()
	report := ports.DayReport{
		Date:         d.Date,
		Sessions:     make([]ports.SessionReport, 0, len(sessions)),
		TotalCarbs:   d.TotalCarbs(),
		TotalInsulin: d.TotalInsulin(),
	}
	for _, session := range sessions {
		sr := ports.SessionReport{
			Date:         session.Date,
			Records:      make([]ports.RecordReport, 0, len(session.Records)),
			TotalCarbs:   session.TotalCarbs(),
			TotalInsulin: session.TotalInsulin(),
		}
		for _, r := range session.Records {
			sr.Records = append(sr.Records, recordReport(snap, r))
		}
		report.Sessions = append(report.Sessions, sr)
	}
	return report
}

var _ ports.DiaryService = (*DiaryService)(nil)
