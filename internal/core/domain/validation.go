package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Validation limits
const (
	MinSugarLevel      = 0.1
	MaxSugarLevel      = 30.0
	MinInsulinUnits    = 1
	MaxInsulinUnits    = 100
	MinBreadUnits      = 0.1
	MaxBreadUnits      = 50.0
	MaxFoodLength      = 500
	MaxFutureClockSkew = 5 * time.Minute
)

// ValidationKind identifies which constraint a record violated
type ValidationKind string

const (
	SugarTooLow       ValidationKind = "sugar_too_low"
	SugarTooHigh      ValidationKind = "sugar_too_high"
	InsulinTooLow     ValidationKind = "insulin_too_low"
	InsulinTooHigh    ValidationKind = "insulin_too_high"
	BreadUnitsTooLow  ValidationKind = "bread_units_too_low"
	BreadUnitsTooHigh ValidationKind = "bread_units_too_high"
	DateInFuture      ValidationKind = "date_in_future"
	FoodTooLong       ValidationKind = "food_too_long"
	FoodEmpty         ValidationKind = "food_empty"
)

// ValidationError describes a single violated constraint together with the
// offending value.
type ValidationError struct {
	Kind  ValidationKind `json:"kind"`
	Value any            `json:"value,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case SugarTooLow:
		return fmt.Sprintf("sugar level %v is too low (min %.1f)", e.Value, MinSugarLevel)
	case SugarTooHigh:
		return fmt.Sprintf("sugar level %v is too high (max %.1f)", e.Value, MaxSugarLevel)
	case InsulinTooLow:
		return fmt.Sprintf("insulin units %v is too low (min %d)", e.Value, MinInsulinUnits)
	case InsulinTooHigh:
		return fmt.Sprintf("insulin units %v is too high (max %d)", e.Value, MaxInsulinUnits)
	case BreadUnitsTooLow:
		return fmt.Sprintf("bread units %v is too low (min %.1f)", e.Value, MinBreadUnits)
	case BreadUnitsTooHigh:
		return fmt.Sprintf("bread units %v is too high (max %.1f)", e.Value, MaxBreadUnits)
	case DateInFuture:
		if t, ok := e.Value.(time.Time); ok {
			return fmt.Sprintf("date %s cannot be in the future", t.Format(time.RFC3339))
		}
		return "date cannot be in the future"
	case FoodTooLong:
		if s, ok := e.Value.(string); ok {
			return fmt.Sprintf("food description is too long (%d chars, max %d)", utf8.RuneCountInString(s), MaxFoodLength)
		}
		return fmt.Sprintf("food description is too long (max %d)", MaxFoodLength)
	case FoodEmpty:
		return "food description cannot be empty when bread units are specified"
	}
	return fmt.Sprintf("invalid record: %s", e.Kind)
}

// Unwrap lets callers match any validation failure with errors.Is(err, ErrValidation)
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

type recordCheck func(r Record, now time.Time) *ValidationError

// Checks run in this order for both entry points.
var recordChecks = []recordCheck{
	checkDate,
	checkSugar,
	checkInsulin,
	checkBreadUnits,
	checkFood,
	checkBreadNeedsFood,
	checkInsulinNeedsDose,
}

func checkDate(r Record, now time.Time) *ValidationError {
	if r.Date.Sub(now) > MaxFutureClockSkew {
		return &ValidationError{Kind: DateInFuture, Value: r.Date}
	}
	return nil
}

func checkSugar(r Record, _ time.Time) *ValidationError {
	if r.SugarLevel == nil {
		return nil
	}
	switch v := *r.SugarLevel; {
	case v < MinSugarLevel:
		return &ValidationError{Kind: SugarTooLow, Value: v}
	case v > MaxSugarLevel:
		return &ValidationError{Kind: SugarTooHigh, Value: v}
	}
	return nil
}

func checkInsulin(r Record, _ time.Time) *ValidationError {
	if r.InsulinType == InsulinNone || r.InsulinUnits == nil {
		return nil
	}
	switch v := *r.InsulinUnits; {
	case v < MinInsulinUnits:
		return &ValidationError{Kind: InsulinTooLow, Value: v}
	case v > MaxInsulinUnits:
		return &ValidationError{Kind: InsulinTooHigh, Value: v}
	}
	return nil
}

func checkBreadUnits(r Record, _ time.Time) *ValidationError {
	if r.BreadUnits == nil {
		return nil
	}
	switch v := *r.BreadUnits; {
	case v < MinBreadUnits:
		return &ValidationError{Kind: BreadUnitsTooLow, Value: v}
	case v > MaxBreadUnits:
		return &ValidationError{Kind: BreadUnitsTooHigh, Value: v}
	}
	return nil
}

func checkFood(r Record, _ time.Time) *ValidationError {
	if r.Food == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*r.Food)
	if trimmed == "" {
		return &ValidationError{Kind: FoodEmpty}
	}
	if utf8.RuneCountInString(trimmed) > MaxFoodLength {
		return &ValidationError{Kind: FoodTooLong, Value: trimmed}
	}
	return nil
}

func checkBreadNeedsFood(r Record, _ time.Time) *ValidationError {
	if r.BreadUnits != nil && *r.BreadUnits > 0 && !r.HasMeal() {
		return &ValidationError{Kind: FoodEmpty}
	}
	return nil
}

func checkInsulinNeedsDose(r Record, _ time.Time) *ValidationError {
	if r.InsulinType != InsulinNone && (r.InsulinUnits == nil || *r.InsulinUnits <= 0) {
		return &ValidationError{Kind: InsulinTooLow, Value: 0}
	}
	return nil
}

// ValidateRecord returns the first violated constraint as a *ValidationError,
// or nil when the record is acceptable at time now.
func ValidateRecord(r Record, now time.Time) error {
	for _, check := range recordChecks {
		if verr := check(r, now); verr != nil {
			return verr
		}
	}
	return nil
}

// RecordValidationErrors runs every check and returns all violations.
// The result is empty, never nil, for a valid record.
func RecordValidationErrors(r Record, now time.Time) []*ValidationError {
	errs := make([]*ValidationError, 0)
	for _, check := range recordChecks {
		if verr := check(r, now); verr != nil {
			errs = append(errs, verr)
		}
	}
	return errs
}

// IsValidRecord reports whether ValidateRecord accepts r
func IsValidRecord(r Record, now time.Time) bool {
	return ValidateRecord(r, now) == nil
}

// Validator binds the record checks to a clock.
// The zero value uses time.Now.
type Validator struct {
	Now func() time.Time
}

func (v Validator) now() time.Time {
	if v.Now == nil {
		return time.Now()
	}
	return v.Now()
}

func (v Validator) Validate(r Record) error {
	return ValidateRecord(r, v.now())
}

func (v Validator) ValidationErrors(r Record) []*ValidationError {
	return RecordValidationErrors(r, v.now())
}

func (v Validator) IsValid(r Record) bool {
	return IsValidRecord(r, v.now())
}
