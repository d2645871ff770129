package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/IANDYI/glucose-diary/internal/adapters/middleware"
	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"go.uber.org/zap"
)

// generateRequestID generates a unique request ID for tracing
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// Fallback to timestamp-based ID if random generation fails
		return hex.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	return hex.EncodeToString(b)
}

// logStructured logs one completed request with its metadata
func logStructured(logger *zap.Logger, r *http.Request, requestID string, statusCode int, duration time.Duration) {
	userID, _ := middleware.GetUserID(r.Context())
	role, _ := middleware.GetRole(r.Context())

	logger.Info("request handled",
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.String("role", role),
		zap.String("method", r.Method),
		zap.String("endpoint", r.URL.Path),
		zap.Int("status_code", statusCode),
		zap.Int64("duration_ms", duration.Milliseconds()),
	)
}

// errorResponse is the JSON body returned for rejected records
type errorResponse struct {
	Error string                `json:"error"`
	Kind  domain.ValidationKind `json:"kind,omitempty"`
	Value any                   `json:"value,omitempty"`
}

// writeJSON encodes body with the given status code
func writeJSON(logger *zap.Logger, w http.ResponseWriter, requestID string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", zap.String("request_id", requestID), zap.Error(err))
	}
}

// writeServiceError maps a service error to an HTTP status and writes it.
// Internal details never reach the client.
func writeServiceError(logger *zap.Logger, w http.ResponseWriter, requestID string, err error) int {
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &validationErr):
		status := http.StatusUnprocessableEntity
		writeJSON(logger, w, requestID, status, errorResponse{
			Error: validationErr.Error(),
			Kind:  validationErr.Kind,
			Value: validationErr.Value,
		})
		return status
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRecordNotFound):
		http.Error(w, "record not found", http.StatusNotFound)
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateRecord):
		http.Error(w, "record already exists", http.StatusConflict)
		return http.StatusConflict
	default:
		logger.Error("service call failed", zap.String("request_id", requestID), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return http.StatusInternalServerError
	}
}
