package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DayLayout is the path format of /days/{date}
const DayLayout = "2006-01-02"

const maxRequestBodyBytes = 1 << 20

// RecordHandler handles HTTP requests for diary records and days
type RecordHandler struct {
	diaryService ports.DiaryService
	loc          *time.Location
	logger       *zap.Logger
}

// NewRecordHandler creates a new record handler. loc is the time zone that
// /days/{date} is interpreted in.
func NewRecordHandler(diaryService ports.DiaryService, loc *time.Location, logger *zap.Logger) *RecordHandler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordHandler{
		diaryService: diaryService,
		loc:          loc,
		logger:       logger,
	}
}

// ValidationIssue is one failed check reported by POST /records/validate
type ValidationIssue struct {
	Kind    domain.ValidationKind `json:"kind"`
	Value   any                   `json:"value,omitempty"`
	Message string                `json:"message"`
}

// ValidationResult is the response of POST /records/validate
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationIssue `json:"errors"`
}

// SampleDataResponse is the response of POST /records/sample
type SampleDataResponse struct {
	Count int `json:"count"`
}

// CreateRecord handles POST /records
// OWNER only
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	req, ok := h.decodeRecordRequest(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	report, err := h.diaryService.CreateRecord(r.Context(), req)
	if err != nil {
		status := h.writeWriteError(w, requestID, "create", err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	h.recordWrite("create", report)
	writeJSON(h.logger, w, requestID, http.StatusCreated, report)
	logStructured(h.logger, r, requestID, http.StatusCreated, time.Since(startTime))
}

// UpdateRecord handles PUT /records/{record_id}
// OWNER only. Every field is replaced; an omitted date keeps the stored one.
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	recordID, ok := h.recordID(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	req, ok := h.decodeRecordRequest(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	report, err := h.diaryService.UpdateRecord(r.Context(), recordID, req)
	if err != nil {
		status := h.writeWriteError(w, requestID, "update", err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	h.recordWrite("update", report)
	writeJSON(h.logger, w, requestID, http.StatusOK, report)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// DeleteRecord handles DELETE /records/{record_id}
// OWNER only
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	recordID, ok := h.recordID(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	if err := h.diaryService.DeleteRecord(r.Context(), recordID); err != nil {
		status := h.writeWriteError(w, requestID, "delete", err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	RecordWritesTotal.WithLabelValues("delete", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
	logStructured(h.logger, r, requestID, http.StatusNoContent, time.Since(startTime))
}

// GetRecord handles GET /records/{record_id}
// OWNER and VIEWER
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	recordID, ok := h.recordID(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	report, err := h.diaryService.GetRecord(r.Context(), recordID)
	if err != nil {
		status := writeServiceError(h.logger, w, requestID, err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	writeJSON(h.logger, w, requestID, http.StatusOK, report)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// ListRecords handles GET /records
// OWNER and VIEWER. Records are returned newest first.
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	reports, err := h.diaryService.ListRecords(r.Context())
	if err != nil {
		status := writeServiceError(h.logger, w, requestID, err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	DiaryRecords.Set(float64(len(reports)))
	writeJSON(h.logger, w, requestID, http.StatusOK, reports)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// ListDays handles GET /days
// OWNER and VIEWER. Days are returned newest first.
func (h *RecordHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	days, err := h.diaryService.ListDays(r.Context())
	if err != nil {
		status := writeServiceError(h.logger, w, requestID, err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	writeJSON(h.logger, w, requestID, http.StatusOK, days)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// GetDay handles GET /days/{date}
// OWNER and VIEWER. date is YYYY-MM-DD in the diary's time zone.
func (h *RecordHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	dateStr := r.PathValue("date")
	day, err := time.ParseInLocation(DayLayout, dateStr, h.loc)
	if err != nil {
		h.logger.Info("invalid day", zap.String("request_id", requestID), zap.String("date", dateStr))
		http.Error(w, "invalid date (expected YYYY-MM-DD)", http.StatusBadRequest)
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	report, err := h.diaryService.GetDay(r.Context(), day)
	if err != nil {
		status := writeServiceError(h.logger, w, requestID, err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	writeJSON(h.logger, w, requestID, http.StatusOK, report)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// ValidateRecord handles POST /records/validate
// OWNER and VIEWER. Runs every check and stores nothing.
func (h *RecordHandler) ValidateRecord(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	req, ok := h.decodeRecordRequest(w, r, requestID)
	if !ok {
		logStructured(h.logger, r, requestID, http.StatusBadRequest, time.Since(startTime))
		return
	}

	errs, err := h.diaryService.CheckRecord(r.Context(), req)
	if err != nil {
		status := writeServiceError(h.logger, w, requestID, err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	result := ValidationResult{Valid: len(errs) == 0, Errors: make([]ValidationIssue, 0, len(errs))}
	for _, e := range errs {
		result.Errors = append(result.Errors, ValidationIssue{Kind: e.Kind, Value: e.Value, Message: e.Error()})
	}

	writeJSON(h.logger, w, requestID, http.StatusOK, result)
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

// ClearRecords handles DELETE /records
// OWNER only
func (h *RecordHandler) ClearRecords(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	if err := h.diaryService.ClearRecords(r.Context()); err != nil {
		status := h.writeWriteError(w, requestID, "clear", err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	RecordWritesTotal.WithLabelValues("clear", "ok").Inc()
	DiaryRecords.Set(0)
	w.WriteHeader(http.StatusNoContent)
	logStructured(h.logger, r, requestID, http.StatusNoContent, time.Since(startTime))
}

// ResetToSampleData handles POST /records/sample
// OWNER only. Replaces the whole diary with demonstration records.
func (h *RecordHandler) ResetToSampleData(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := generateRequestID()

	count, err := h.diaryService.ResetToSampleData(r.Context())
	if err != nil {
		status := h.writeWriteError(w, requestID, "sample", err)
		logStructured(h.logger, r, requestID, status, time.Since(startTime))
		return
	}

	RecordWritesTotal.WithLabelValues("sample", "ok").Inc()
	DiaryRecords.Set(float64(count))
	writeJSON(h.logger, w, requestID, http.StatusOK, SampleDataResponse{Count: count})
	logStructured(h.logger, r, requestID, http.StatusOK, time.Since(startTime))
}

func (h *RecordHandler) recordID(w http.ResponseWriter, r *http.Request, requestID string) (uuid.UUID, bool) {
	recordIDStr := r.PathValue("record_id")
	recordID, err := uuid.Parse(recordIDStr)
	if err != nil {
		h.logger.Info("invalid record ID", zap.String("request_id", requestID), zap.String("record_id", recordIDStr))
		http.Error(w, "invalid record ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return recordID, true
}

func (h *RecordHandler) decodeRecordRequest(w http.ResponseWriter, r *http.Request, requestID string) (ports.RecordRequest, bool) {
	var req ports.RecordRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Info("failed to decode request", zap.String("request_id", requestID), zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *RecordHandler) writeWriteError(w http.ResponseWriter, requestID, operation string, err error) int {
	outcome := "error"
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		outcome = "invalid"
		ValidationFailuresTotal.WithLabelValues(string(validationErr.Kind)).Inc()
	case errors.Is(err, domain.ErrRecordNotFound):
		outcome = "not_found"
	}
	RecordWritesTotal.WithLabelValues(operation, outcome).Inc()
	return writeServiceError(h.logger, w, requestID, err)
}

func (h *RecordHandler) recordWrite(operation string, report *ports.RecordReport) {
	RecordWritesTotal.WithLabelValues(operation, "ok").Inc()
	if report.HasSugar() {
		GlucoseReadingsTotal.WithLabelValues(string(report.Assessment.Status), string(report.Assessment.Rule)).Inc()
	}
}
