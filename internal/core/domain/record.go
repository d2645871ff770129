package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsulinType is the kind of insulin injected with a record
type InsulinType int

const (
	InsulinNone InsulinType = iota
	InsulinRapidActing
	InsulinLongActing
)

// DefaultInsulinUnits is the dose a new record starts with
const DefaultInsulinUnits = 7

var insulinTypeNames = map[InsulinType]string{
	InsulinNone:        "none",
	InsulinRapidActing: "rapid_acting",
	InsulinLongActing:  "long_acting",
}

// legacy product names written by older clients
var insulinTypeAliases = map[string]InsulinType{
	"novorapid": InsulinRapidActing,
	"levemir":   InsulinLongActing,
}

func (t InsulinType) String() string {
	if name, ok := insulinTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("InsulinType(%d)", int(t))
}

// IsValid reports whether t is one of the known variants
func (t InsulinType) IsValid() bool {
	_, ok := insulinTypeNames[t]
	return ok
}

// ParseInsulinType converts a text value into an InsulinType.
// Matching is case-insensitive and accepts legacy product names.
func ParseInsulinType(s string) (InsulinType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for t, name := range insulinTypeNames {
		if name == key {
			return t, nil
		}
	}
	if t, ok := insulinTypeAliases[key]; ok {
		return t, nil
	}
	return InsulinNone, fmt.Errorf("unknown insulin type %q", s)
}

func (t InsulinType) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("invalid insulin type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *InsulinType) UnmarshalText(text []byte) error {
	parsed, err := ParseInsulinType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Record is a single diary observation: a glucose reading, an injection,
// a meal, or any combination of them.
type Record struct {
	ID           uuid.UUID   `json:"id"`
	Date         time.Time   `json:"date"`
	SugarLevel   *float64    `json:"sugar_level,omitempty"`
	InsulinType  InsulinType `json:"insulin_type"`
	InsulinUnits *int        `json:"insulin_units,omitempty"`
	Food         *string     `json:"food,omitempty"`
	BreadUnits   *float64    `json:"bread_units,omitempty"`
}

// NewRecord creates a record with a fresh identity and the default
// rapid-acting dose.
func NewRecord(date time.Time) Record {
	return Record{
		ID:           uuid.New(),
		Date:         date,
		InsulinType:  InsulinRapidActing,
		InsulinUnits: Ptr(DefaultInsulinUnits),
	}
}

// DidTakeInsulin reports whether an actual dose was injected
func (r Record) DidTakeInsulin() bool {
	return r.InsulinType != InsulinNone && r.InsulinUnits != nil && *r.InsulinUnits > 0
}

// HasMeal reports whether the record carries a non-blank food description
func (r Record) HasMeal() bool {
	return r.Food != nil && strings.TrimSpace(*r.Food) != ""
}

// HasSugar reports whether a glucose value was measured
func (r Record) HasSugar() bool {
	return r.SugarLevel != nil
}

// Clone returns a copy that shares no pointers with r
func (r Record) Clone() Record {
	c := r
	if r.SugarLevel != nil {
		c.SugarLevel = Ptr(*r.SugarLevel)
	}
	if r.InsulinUnits != nil {
		c.InsulinUnits = Ptr(*r.InsulinUnits)
	}
	if r.Food != nil {
		c.Food = Ptr(*r.Food)
	}
	if r.BreadUnits != nil {
		c.BreadUnits = Ptr(*r.BreadUnits)
	}
	return c
}

// Ptr returns a pointer to a copy of v
func Ptr[T any](v T) *T {
	return &v
}
