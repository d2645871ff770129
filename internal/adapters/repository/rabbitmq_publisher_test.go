package repository

import (
	"testing"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBuildAlertEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 14, 0, 0, 0, time.UTC)
	record := domain.Record{ID: uuid.New(), Date: now.Add(-time.Minute), SugarLevel: domain.Ptr(7.5)}

	tests := []struct {
		name       string
		assessment domain.GlucoseAssessment
		alertType  string
		severity   string
	}{
		{
			name:       "fasting",
			assessment: domain.GlucoseAssessment{Status: domain.GlucoseHigh, Rule: domain.RuleFasting, Threshold: 5.0},
			alertType:  "high_fasting_glucose",
			severity:   "critical",
		},
		{
			name:       "one hour after meal",
			assessment: domain.GlucoseAssessment{Status: domain.GlucoseHigh, Rule: domain.RulePostMealOneHour, Threshold: 7.0},
			alertType:  "high_post_meal_glucose",
			severity:   "warning",
		},
		{
			name:       "fallback",
			assessment: domain.GlucoseAssessment{Status: domain.GlucoseHigh, Rule: domain.RuleFallback, Threshold: 5.0},
			alertType:  "high_glucose",
			severity:   "critical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := buildAlertEvent(record, tt.assessment, now)

			assert.NotEqual(t, uuid.Nil, event.EventID)
			assert.Equal(t, record.ID, event.RecordID)
			assert.Equal(t, 7.5, event.SugarLevel)
			assert.Equal(t, tt.alertType, event.AlertType)
			assert.Equal(t, tt.severity, event.Severity)
			assert.InDelta(t, 7.5-tt.assessment.Threshold, event.Excess, 1e-9)
			assert.Equal(t, now, event.Timestamp)
		})
	}
}
