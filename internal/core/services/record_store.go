package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordStore owns the diary collection.
// Records are kept sorted by date, newest first. Every mutation validates,
// builds the new collection, persists it and only then swaps it in, all
// while holding the write lock, so readers never see a partial change.
type RecordStore struct {
	mu        sync.RWMutex
	records   []domain.Record
	repo      ports.RecordRepository
	validator domain.Validator
	loc       *time.Location
	logger    *zap.Logger
}

// StoreOption configures a RecordStore
type StoreOption func(*RecordStore)

// WithClock sets the clock used for the future date check
func WithClock(now func() time.Time) StoreOption {
	return func(s *RecordStore) {
		s.validator = domain.Validator{Now: now}
	}
}

// WithLocation sets the time zone that defines calendar days
func WithLocation(loc *time.Location) StoreOption {
	return func(s *RecordStore) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *RecordStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRecordStore creates an empty store. A nil repo keeps the diary in memory only.
func NewRecordStore(repo ports.RecordRepository, opts ...StoreOption) *RecordStore {
	s := &RecordStore{
		repo:   repo,
		loc:    time.Local,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the time zone used for calendar days
func (s *RecordStore) Location() *time.Location {
	return s.loc
}

// Now returns the current time according to the store clock
func (s *RecordStore) Now() time.Time {
	if s.validator.Now == nil {
		return time.Now()
	}
	return s.validator.Now()
}

// Validator returns the validator bound to the store clock
func (s *RecordStore) Validator() domain.Validator {
	return s.validator
}

// Load replaces the in-memory collection with the persisted one
func (s *RecordStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded, err := s.repo.LoadRecords(ctx)
	if err != nil {
		return fmt.Errorf("%w: load records: %v", domain.ErrPersistence, err)
	}

	records := cloneRecords(loaded)
	sortNewestFirst(records)
	s.records = records

	s.logger.Info("records loaded", zap.Int("count", len(records)))
	return nil
}

// Add validates r and inserts it
func (s *RecordStore) Add(ctx context.Context, r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validator.Validate(r); err != nil {
		return err
	}

	if indexOf(s.records, r.ID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRecord, r.ID)
	}

	next := make([]domain.Record, 0, len(s.records)+1)
	next = append(next, s.records...)
	next = append(next, r.Clone())
	sortNewestFirst(next)

	return s.commit(ctx, next)
}

// Update validates r and replaces the stored record with the same id.
// It reports false, without error, when no such record exists.
func (s *RecordStore) Update(ctx context.Context, r domain.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validator.Validate(r); err != nil {
		return false, err
	}

	idx := indexOf(s.records, r.ID)
	if idx < 0 {
		return false, nil
	}

	next := slices.Clone(s.records)
	next[idx] = r.Clone()
	sortNewestFirst(next)

	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes the record with the given id. It reports false when
// nothing was removed.
func (s *RecordStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexOf(s.records, id)
	if idx < 0 {
		return false, nil
	}

	next := slices.Delete(slices.Clone(s.records), idx, idx+1)
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// Clear removes every record
func (s *RecordStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, []domain.Record{})
}

// ReplaceAll swaps the whole collection. Every record must pass validation
// and ids must be unique; otherwise nothing changes.
func (s *RecordStore) ReplaceAll(ctx context.Context, records []domain.Record) error {
	seen := make(map[uuid.UUID]struct{}, len(records))
	for _, r := range records {
		if err := s.validator.Validate(r); err != nil {
			return err
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRecord, r.ID)
		}
		seen[r.ID] = struct{}{}
	}

	next := cloneRecords(records)
	sortNewestFirst(next)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commit(ctx, next)
}

// commit persists next and installs it. Caller holds the write lock.
func (s *RecordStore) commit(ctx context.Context, next []domain.Record) error {
	if s.repo != nil {
		if err := s.repo.SaveRecords(ctx, next); err != nil {
			s.logger.Error("failed to persist records", zap.Error(err), zap.Int("count", len(next)))
			return fmt.Errorf("%w: save records: %v", domain.ErrPersistence, err)
		}
	}
	s.records = next
	return nil
}

// Get returns a copy of the record with the given id
func (s *RecordStore) Get(id uuid.UUID) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := indexOf(s.records, id)
	if idx < 0 {
		return domain.Record{}, false
	}
	return s.records[idx].Clone(), true
}

// Records returns a copy of the collection, newest first
func (s *RecordStore) Records() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRecords(s.records)
}

func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}

// PreviousRecord returns the latest record dated strictly before the given
// time, or nil.
func (s *RecordStore) PreviousRecord(before time.Time) *domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return previousRecord(s.records, before)
}

// IsFirstSugarOfDay reports whether r carries the earliest sugar reading of
// its calendar day.
func (s *RecordStore) IsFirstSugarOfDay(r domain.Record) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return isFirstSugarOfDay(s.records, r, s.loc)
}

// Snapshot returns a consistent read-only view of the current collection
func (s *RecordStore) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Snapshot{records: cloneRecords(s.records), loc: s.loc}
}

// Snapshot is an immutable copy of the diary with the same query helpers
// as the store.
type Snapshot struct {
	records []domain.Record
	loc     *time.Location
}

// Records returns the snapshot records, newest first. Callers must not modify them.
func (s *Snapshot) Records() []domain.Record {
	return s.records
}

func (s *Snapshot) Get(id uuid.UUID) (domain.Record, bool) {
	idx := indexOf(s.records, id)
	if idx < 0 {
		return domain.Record{}, false
	}
	return s.records[idx], true
}

func (s *Snapshot) PreviousRecord(before time.Time) *domain.Record {
	return previousRecord(s.records, before)
}

func (s *Snapshot) IsFirstSugarOfDay(r domain.Record) bool {
	return isFirstSugarOfDay(s.records, r, s.loc)
}

// Assess classifies r against the snapshot contents
func (s *Snapshot) Assess(r domain.Record) domain.GlucoseAssessment {
	return domain.AssessGlucose(r, s.PreviousRecord(r.Date), s.IsFirstSugarOfDay(r))
}

// Days groups the snapshot by calendar day
func (s *Snapshot) Days() []domain.Day {
	return domain.GroupByDay(s.records, s.loc)
}

func previousRecord(records []domain.Record, before time.Time) *domain.Record {
	// newest first, so the first match is the latest one
	for i := range records {
		if records[i].Date.Before(before) {
			prev := records[i].Clone()
			return &prev
		}
	}
	return nil
}

func isFirstSugarOfDay(records []domain.Record, r domain.Record, loc *time.Location) bool {
	if !r.HasSugar() {
		return false
	}
	for _, other := range records {
		if other.ID == r.ID || !other.HasSugar() {
			continue
		}
		if other.Date.Before(r.Date) && domain.SameDay(other.Date, r.Date, loc) {
			return false
		}
	}
	return true
}

func indexOf(records []domain.Record, id uuid.UUID) int {
	return slices.IndexFunc(records, func(r domain.Record) bool {
		return r.ID == id
	})
}

func sortNewestFirst(records []domain.Record) {
	slices.SortStableFunc(records, func(a, b domain.Record) int {
		return b.Date.Compare(a.Date)
	})
}

func cloneRecords(records []domain.Record) []domain.Record {
	out := make([]domain.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
