package handler

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RecordWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diary_record_writes_total",
			Help: "Total number of diary writes by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	ValidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diary_validation_failures_total",
			Help: "Total number of rejected records by validation kind",
		},
		[]string{"kind"},
	)

	GlucoseReadingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diary_glucose_readings_total",
			Help: "Total number of stored glucose readings by classification",
		},
		[]string{"status", "rule"},
	)

	DiaryRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "diary_records",
			Help: "Number of records in the diary after the last list or write",
		},
	)
)

// RegisterDiaryMetrics registers all diary handler metrics
func RegisterDiaryMetrics() {
	prometheus.MustRegister(RecordWritesTotal)
	prometheus.MustRegister(ValidationFailuresTotal)
	prometheus.MustRegister(GlucoseReadingsTotal)
	prometheus.MustRegister(DiaryRecords)
}
