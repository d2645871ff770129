package services

import (
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/domain"
	"github.com/google/uuid"
)

type sampleEntry struct {
	at      time.Time
	sugar   *float64
	insulin domain.InsulinType
	units   *int
	food    *string
	bread   *float64
}

// SampleRecords builds the demonstration diary relative to now: three meals
// with their control readings over the last day, plus two earlier evenings.
func SampleRecords(now time.Time, loc *time.Location) []domain.Record {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	hoursAgo := func(h int) time.Time { return now.Add(-time.Duration(h) * time.Hour) }

	today := domain.DayOf(now, loc)
	yesterday := today.AddDate(0, 0, -1)
	twoDaysAgo := today.AddDate(0, 0, -2)
	clock := func(day time.Time, hour, minute int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	}

	f := domain.Ptr[float64]
	n := domain.Ptr[int]
	s := domain.Ptr[string]
	none, rapid, long := domain.InsulinNone, domain.InsulinRapidActing, domain.InsulinLongActing

	entries := []sampleEntry{
		{hoursAgo(19), f(5.1), none, nil, nil, nil},
		{hoursAgo(18), f(5.0), rapid, n(7), s("Oatmeal with berries"), f(6.0)},
		{hoursAgo(17), f(6.2), rapid, n(1), nil, nil},
		{hoursAgo(16), f(5.1), none, nil, nil, nil},
		{hoursAgo(15), f(4.8), none, nil, nil, nil},
		{hoursAgo(13), f(4.7), rapid, n(8), s("Chicken soup and bread"), f(8.0)},
		{hoursAgo(12), f(6.0), rapid, n(2), nil, nil},
		{hoursAgo(11), f(5.0), none, nil, nil, nil},
		{hoursAgo(10), f(4.6), none, nil, nil, nil},
		{hoursAgo(8), f(4.3), rapid, n(8), s("Buckwheat with cutlet"), f(5.0)},
		{hoursAgo(7), f(5.4), none, nil, nil, nil},
		{hoursAgo(6), f(5.1), none, nil, nil, nil},
		{hoursAgo(5), f(4.8), none, nil, nil, nil},

		{clock(yesterday, 20, 50), f(5.0), rapid, n(8), s("Pasta with cheese"), f(3.5)},
		{clock(yesterday, 21, 50), f(4.5), none, nil, nil, nil},
		{clock(yesterday, 22, 50), nil, rapid, n(1), s("Kefir, 1 glass"), f(1.0)},
		{clock(yesterday, 23, 59), f(6.0), long, n(16), nil, nil},

		{clock(twoDaysAgo, 7, 10), f(5.7), rapid, n(domain.DefaultInsulinUnits), nil, nil},
		{clock(twoDaysAgo, 8, 10), f(5.9), rapid, n(6), s("Chicken with vegetables"), f(2.5)},
		{clock(twoDaysAgo, 9, 10), f(6.5), none, nil, nil, nil},
		{clock(twoDaysAgo, 10, 10), f(5.0), none, nil, nil, nil},
		{clock(twoDaysAgo, 23, 59), f(4.8), long, n(14), nil, nil},
	}

	records := make([]domain.Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, domain.Record{
			ID:           uuid.New(),
			Date:         e.at,
			SugarLevel:   e.sugar,
			InsulinType:  e.insulin,
			InsulinUnits: e.units,
			Food:         e.food,
			BreadUnits:   e.bread,
		})
	}
	sortNewestFirst(records)
	return records
}
