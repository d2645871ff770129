package domain

import "time"

// GlucoseStatus is the qualitative assessment of a sugar reading
type GlucoseStatus string

const (
	GlucoseUnknown GlucoseStatus = "unknown"
	GlucoseNormal  GlucoseStatus = "normal"
	GlucoseHigh    GlucoseStatus = "high"
)

// Color returns the display color associated with the status
func (s GlucoseStatus) Color() string {
	switch s {
	case GlucoseNormal:
		return "green"
	case GlucoseHigh:
		return "red"
	default:
		return "gray"
	}
}

// GlucoseRule names the threshold that decided a classification
type GlucoseRule string

const (
	RuleNone            GlucoseRule = "none"
	RuleFasting         GlucoseRule = "fasting"
	RulePostMealOneHour GlucoseRule = "post_meal_1h"
	RulePostMealTwoHour GlucoseRule = "post_meal_2h"
	RulePostMealLate    GlucoseRule = "post_meal_3h"
	RuleFallback        GlucoseRule = "fallback"
)

// Thresholds in mmol/L
const (
	FastingThreshold         = 5.0
	PostMealOneHourThreshold = 7.0
	PostMealTwoHourThreshold = 6.7
	PostMealLateThreshold    = 5.8
	FallbackThreshold        = 5.0
)

// Post-meal windows measured from the meal record: [48m, 108m), [108m, 168m), [168m, ...).
const (
	PostMealOneHourStart = 48 * time.Minute
	PostMealTwoHourStart = 108 * time.Minute
	PostMealLateStart    = 168 * time.Minute
)

// GlucoseAssessment is the outcome of classifying one record
type GlucoseAssessment struct {
	Status    GlucoseStatus `json:"status"`
	Rule      GlucoseRule   `json:"rule"`
	Threshold float64       `json:"threshold,omitempty"`
}

// AssessGlucose classifies the sugar reading of record. previous is the
// record immediately before it in time (nil if none) and isFirstSugarOfDay
// marks the fasting reading of the day.
func AssessGlucose(record Record, previous *Record, isFirstSugarOfDay bool) GlucoseAssessment {
	if record.SugarLevel == nil {
		return GlucoseAssessment{Status: GlucoseUnknown, Rule: RuleNone}
	}
	sugar := *record.SugarLevel

	if isFirstSugarOfDay {
		return judge(sugar, RuleFasting, FastingThreshold)
	}

	if previous != nil && previous.HasMeal() && record.Date.After(previous.Date) {
		elapsed := record.Date.Sub(previous.Date)
		switch {
		case elapsed >= PostMealLateStart:
			return judge(sugar, RulePostMealLate, PostMealLateThreshold)
		case elapsed >= PostMealTwoHourStart:
			return judge(sugar, RulePostMealTwoHour, PostMealTwoHourThreshold)
		case elapsed >= PostMealOneHourStart:
			return judge(sugar, RulePostMealOneHour, PostMealOneHourThreshold)
		}
	}

	return judge(sugar, RuleFallback, FallbackThreshold)
}

// ClassifyGlucose returns only the status part of AssessGlucose
func ClassifyGlucose(record Record, previous *Record, isFirstSugarOfDay bool) GlucoseStatus {
	return AssessGlucose(record, previous, isFirstSugarOfDay).Status
}

func judge(sugar float64, rule GlucoseRule, threshold float64) GlucoseAssessment {
	status := GlucoseNormal
	if sugar > threshold {
		status = GlucoseHigh
	}
	return GlucoseAssessment{Status: status, Rule: rule, Threshold: threshold}
}
