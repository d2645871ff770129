package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/adapters/handler"
	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockDiaryService is a mock implementation of DiaryService
type MockDiaryService struct {
	mock.Mock
}

func (m *MockDiaryService) CreateRecord(ctx context.Context, req ports.RecordRequest) (*ports.RecordReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RecordReport), args.Error(1)
}

func (m *MockDiaryService) UpdateRecord(ctx context.Context, recordID uuid.UUID, req ports.RecordRequest) (*ports.RecordReport, error) {
	args := m.Called(ctx, recordID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RecordReport), args.Error(1)
}

func (m *MockDiaryService) DeleteRecord(ctx context.Context, recordID uuid.UUID) error {
	args := m.Called(ctx, recordID)
	return args.Error(0)
}

func (m *MockDiaryService) GetRecord(ctx context.Context, recordID uuid.UUID) (*ports.RecordReport, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.RecordReport), args.Error(1)
}

func (m *MockDiaryService) ListRecords(ctx context.Context) ([]ports.RecordReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.RecordReport), args.Error(1)
}

func (m *MockDiaryService) ListDays(ctx context.Context) ([]ports.DayReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ports.DayReport), args.Error(1)
}

func (m *MockDiaryService) GetDay(ctx context.Context, day time.Time) (*ports.DayReport, error) {
	args := m.Called(ctx, day)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ports.DayReport), args.Error(1)
}

func (m *MockDiaryService) CheckRecord(ctx context.Context, req ports.RecordRequest) ([]*domain.ValidationError, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ValidationError), args.Error(1)
}

func (m *MockDiaryService) ClearRecords(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDiaryService) ResetToSampleData(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

var testDate = time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)

func newTestMux(h *handler.RecordHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /records", h.ListRecords)
	mux.HandleFunc("POST /records", h.CreateRecord)
	mux.HandleFunc("DELETE /records", h.ClearRecords)
	mux.HandleFunc("POST /records/validate", h.ValidateRecord)
	mux.HandleFunc("POST /records/sample", h.ResetToSampleData)
	mux.HandleFunc("GET /records/{record_id}", h.GetRecord)
	mux.HandleFunc("PUT /records/{record_id}", h.UpdateRecord)
	mux.HandleFunc("DELETE /records/{record_id}", h.DeleteRecord)
	mux.HandleFunc("GET /days", h.ListDays)
	mux.HandleFunc("GET /days/{date}", h.GetDay)
	return mux
}

func sampleReport() *ports.RecordReport {
	record := domain.NewRecord(testDate)
	record.SugarLevel = domain.Ptr(8.2)
	return &ports.RecordReport{
		Record:         record,
		Assessment:     domain.GlucoseAssessment{Status: domain.GlucoseHigh, Rule: domain.RuleFasting, Threshold: domain.FastingThreshold},
		Color:          "red",
		DidTakeInsulin: true,
	}
}

func doRequest(mux *http.ServeMux, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestRecordHandler_CreateRecord_Success(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	report := sampleReport()
	matchesBody := mock.MatchedBy(func(req ports.RecordRequest) bool {
		return req.Date != nil && req.Date.Equal(testDate) &&
			req.SugarLevel != nil && *req.SugarLevel == 8.2 &&
			req.InsulinType != nil && *req.InsulinType == domain.InsulinRapidActing &&
			req.InsulinUnits != nil && *req.InsulinUnits == 7 &&
			req.Food == nil && req.BreadUnits == nil
	})
	mockService.On("CreateRecord", mock.Anything, matchesBody).Return(report, nil)

	body := []byte(`{"date":"2025-06-01T08:30:00Z","sugar_level":8.2,"insulin_type":"rapid_acting","insulin_units":7}`)
	w := doRequest(mux, "POST", "/records", body)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, report.ID.String(), response["id"])
	assert.Equal(t, "red", response["color"])
	assert.Equal(t, "rapid_acting", response["insulin_type"])
	assessment := response["assessment"].(map[string]any)
	assert.Equal(t, "high", assessment["status"])
	assert.Equal(t, "fasting", assessment["rule"])

	mockService.AssertExpectations(t)
}

func TestRecordHandler_CreateRecord_InvalidBody(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	for _, body := range []string{`{"sugar_level":`, `{"insulin_type":"insulatard"}`, `{"sugar_level":"high"}`} {
		w := doRequest(mux, "POST", "/records", []byte(body))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}

	mockService.AssertNotCalled(t, "CreateRecord", mock.Anything, mock.Anything)
}

func TestRecordHandler_CreateRecord_ValidationError(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	validationErr := &domain.ValidationError{Kind: domain.SugarTooHigh, Value: 42.0}
	mockService.On("CreateRecord", mock.Anything, mock.Anything).Return(nil, validationErr)

	w := doRequest(mux, "POST", "/records", []byte(`{"sugar_level":42}`))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "sugar_too_high", response["kind"])
	assert.Equal(t, 42.0, response["value"])
	assert.Equal(t, validationErr.Error(), response["error"])
}

func TestRecordHandler_CreateRecord_InternalErrorIsHidden(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	storageErr := fmt.Errorf("%w: dial tcp 10.0.0.7:5432: connection refused", domain.ErrPersistence)
	mockService.On("CreateRecord", mock.Anything, mock.Anything).Return(nil, storageErr)

	w := doRequest(mux, "POST", "/records", []byte(`{"sugar_level":5.5}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")
}

func TestRecordHandler_UpdateRecord(t *testing.T) {
	recordID := uuid.New()

	tests := []struct {
		name           string
		path           string
		serviceErr     error
		expectedStatus int
	}{
		{"success", "/records/" + recordID.String(), nil, http.StatusOK},
		{"not found", "/records/" + recordID.String(), domain.ErrRecordNotFound, http.StatusNotFound},
		{"invalid id", "/records/not-a-uuid", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockDiaryService)
			mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

			if tt.serviceErr != nil {
				mockService.On("UpdateRecord", mock.Anything, recordID, mock.Anything).Return(nil, tt.serviceErr)
			} else {
				mockService.On("UpdateRecord", mock.Anything, recordID, mock.Anything).Return(sampleReport(), nil)
			}

			w := doRequest(mux, "PUT", tt.path, []byte(`{"sugar_level":6.1,"food":"porridge","bread_units":2}`))
			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusBadRequest {
				mockService.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRecordHandler_DeleteRecord(t *testing.T) {
	recordID := uuid.New()

	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))
	mockService.On("DeleteRecord", mock.Anything, recordID).Return(nil).Once()
	mockService.On("DeleteRecord", mock.Anything, recordID).Return(domain.ErrRecordNotFound).Once()

	w := doRequest(mux, "DELETE", "/records/"+recordID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(mux, "DELETE", "/records/"+recordID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	mockService.AssertExpectations(t)
}

func TestRecordHandler_GetRecord(t *testing.T) {
	report := sampleReport()

	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))
	mockService.On("GetRecord", mock.Anything, report.ID).Return(report, nil)

	w := doRequest(mux, "GET", "/records/"+report.ID.String(), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response ports.RecordReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, report.ID, response.ID)
	assert.Equal(t, domain.InsulinRapidActing, response.InsulinType)
	require.NotNil(t, response.SugarLevel)
	assert.Equal(t, 8.2, *response.SugarLevel)
}

func TestRecordHandler_ListRecords(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))
	mockService.On("ListRecords", mock.Anything).Return([]ports.RecordReport{*sampleReport(), *sampleReport()}, nil)

	w := doRequest(mux, "GET", "/records", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []ports.RecordReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Len(t, response, 2)
}

func TestRecordHandler_ListRecords_Error(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))
	mockService.On("ListRecords", mock.Anything).Return(nil, errors.New("boom"))

	w := doRequest(mux, "GET", "/records", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRecordHandler_ListDays(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	days := []ports.DayReport{{
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Sessions:     []ports.SessionReport{{Date: testDate, Records: []ports.RecordReport{*sampleReport()}, TotalInsulin: 7}},
		TotalInsulin: 7,
	}}
	mockService.On("ListDays", mock.Anything).Return(days, nil)

	w := doRequest(mux, "GET", "/days", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []ports.DayReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, 7, response[0].TotalInsulin)
	assert.Len(t, response[0].Sessions, 1)
}

func TestRecordHandler_GetDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, loc, nil))

	expectedDay := time.Date(2025, 6, 1, 0, 0, 0, 0, loc)
	mockService.On("GetDay", mock.Anything, mock.MatchedBy(func(day time.Time) bool {
		return day.Equal(expectedDay)
	})).Return(&ports.DayReport{Date: expectedDay, Sessions: []ports.SessionReport{}}, nil)

	w := doRequest(mux, "GET", "/days/2025-06-01", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(mux, "GET", "/days/01-06-2025", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	mockService.AssertNumberOfCalls(t, "GetDay", 1)
}

func TestRecordHandler_ValidateRecord(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))

	errs := []*domain.ValidationError{
		{Kind: domain.SugarTooLow, Value: 0.5},
		{Kind: domain.FoodEmpty},
	}
	mockService.On("CheckRecord", mock.Anything, mock.Anything).Return(errs, nil).Once()
	mockService.On("CheckRecord", mock.Anything, mock.Anything).Return([]*domain.ValidationError{}, nil).Once()

	w := doRequest(mux, "POST", "/records/validate", []byte(`{"sugar_level":0.5,"bread_units":2}`))
	assert.Equal(t, http.StatusOK, w.Code)

	var result handler.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, domain.SugarTooLow, result.Errors[0].Kind)
	assert.Equal(t, domain.FoodEmpty, result.Errors[1].Kind)
	assert.NotEmpty(t, result.Errors[1].Message)

	w = doRequest(mux, "POST", "/records/validate", []byte(`{"sugar_level":5.5}`))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
}

func TestRecordHandler_ClearAndSample(t *testing.T) {
	mockService := new(MockDiaryService)
	mux := newTestMux(handler.NewRecordHandler(mockService, time.UTC, nil))
	mockService.On("ClearRecords", mock.Anything).Return(nil)
	mockService.On("ResetToSampleData", mock.Anything).Return(22, nil)

	w := doRequest(mux, "DELETE", "/records", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(mux, "POST", "/records/sample", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response handler.SampleDataResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 22, response.Count)

	mockService.AssertExpectations(t)
}
