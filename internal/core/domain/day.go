package domain

import (
	"slices"
	"time"
)

// DayOf returns midnight of the calendar day containing t in loc.
// A nil loc means the location already attached to t.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day in loc
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayOf(a, loc).Equal(DayOf(b, loc))
}

// Day holds the records of one calendar day, newest first
type Day struct {
	Date    time.Time `json:"date"`
	Records []Record  `json:"records"`
}

func (d Day) TotalInsulin() int {
	return Session{Records: d.Records}.TotalInsulin()
}

func (d Day) TotalCarbs() float64 {
	return Session{Records: d.Records}.TotalCarbs()
}

// Sessions groups the day's records into meal episodes
func (d Day) Sessions() []Session {
	return GroupSessions(d.Records)
}

// GroupByDay buckets records by calendar day in loc.
// Days are returned newest first and records inside a day newest first.
func GroupByDay(records []Record, loc *time.Location) []Day {
	byDay := make(map[time.Time][]Record)
	for _, r := range records {
		key := DayOf(r.Date, loc)
		byDay[key] = append(byDay[key], r)
	}

	days := make([]Day, 0, len(byDay))
	for date, recs := range byDay {
		slices.SortStableFunc(recs, func(a, b Record) int {
			return b.Date.Compare(a.Date)
		})
		days = append(days, Day{Date: date, Records: recs})
	}
	slices.SortFunc(days, func(a, b Day) int {
		return b.Date.Compare(a.Date)
	})
	return days
}
