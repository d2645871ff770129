package domain

import (
	"slices"
	"time"
)

// Session is one meal episode: a meal record followed by its control
// measurements, or a run of bare measurements with no meal.
type Session struct {
	Date    time.Time `json:"date"`
	Records []Record  `json:"records"`
}

// TotalCarbs sums the bread units present in the session
func (s Session) TotalCarbs() float64 {
	var total float64
	for _, r := range s.Records {
		if r.BreadUnits != nil {
			total += *r.BreadUnits
		}
	}
	return total
}

// TotalInsulin sums every present dose. The insulin type is not consulted,
// so a stray value on a record of type none is counted too.
func (s Session) TotalInsulin() int {
	var total int
	for _, r := range s.Records {
		if r.InsulinUnits != nil {
			total += *r.InsulinUnits
		}
	}
	return total
}

// GroupSessions partitions the records of a single day into sessions.
// The input is not modified; records are walked in ascending date order.
func GroupSessions(dayRecords []Record) []Session {
	if len(dayRecords) == 0 {
		return nil
	}

	ordered := slices.Clone(dayRecords)
	slices.SortStableFunc(ordered, func(a, b Record) int {
		return a.Date.Compare(b.Date)
	})

	var sessions []Session
	var current []Record
	flush := func() {
		if len(current) > 0 {
			sessions = append(sessions, Session{Date: current[0].Date, Records: current})
		}
	}

	for _, r := range ordered {
		switch {
		case len(current) == 0:
			current = []Record{r}
		case !current[0].HasMeal() && !r.HasMeal():
			current = append(current, r)
		case r.HasMeal():
			flush()
			current = []Record{r}
		default:
			current = append(current, r)
		}
	}
	flush()

	return sessions
}
