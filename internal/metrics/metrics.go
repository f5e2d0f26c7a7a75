// Package metrics exposes Prometheus instruments for stage runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Record outcomes counted per stage.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

var (
	// stageRuns counts finished stage runs by stage and result.
	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zakupki_stage_runs_total",
		Help: "Finished stage runs by stage and result",
	}, []string{"stage", "result"})

	// stageDuration tracks wall time of a stage run.
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zakupki_stage_duration_seconds",
		Help:    "Stage run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms to ~27m
	}, []string{"stage"})

	// recordOutcomes counts per-record results inside stage runs.
	recordOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zakupki_stage_records_total",
		Help: "Records handled by stage runs, by outcome",
	}, []string{"stage", "outcome"})
)

// ObserveStage records one finished stage run.
func ObserveStage(stage string, success bool, d time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	stageRuns.WithLabelValues(stage, result).Inc()
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddRecords adds n records with the given outcome. Zero is ignored.
func AddRecords(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	recordOutcomes.WithLabelValues(stage, outcome).Add(float64(n))
}
