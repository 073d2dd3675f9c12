// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline, the release gate and the downloader.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	LinesRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announcarr_lines_read_total",
			Help: "Log lines pushed to the queue, by source module and phase",
		},
		[]string{"module", "phase"}, // phase: "backlog", "live"
	)

	EventsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announcarr_events_parsed_total",
			Help: "Release announcements parsed from log lines",
		},
		[]string{"module"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "announcarr_queue_depth",
			Help: "Items waiting in the ingestion queue",
		},
	)

	ItemErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "announcarr_item_errors_total",
			Help: "Queue items whose processing failed",
		},
	)

	// Release gate
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announcarr_gate_decisions_total",
			Help: "Release gate classifications",
		},
		[]string{"decision"},
	)

	// Downloads
	Downloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announcarr_downloads_total",
			Help: "Download attempts by outcome",
		},
		[]string{"outcome"}, // "success", "already_downloaded", "missing", "deferred", "queued", "failed", "skipped"
	)

	// Deferred retries
	RetrySweeps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "announcarr_retry_sweeps_total",
			Help: "Deferred download sweeps run",
		},
	)

	DeferredRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "announcarr_deferred_retries_total",
			Help: "Deferred download retry results",
		},
		[]string{"result"}, // "success", "dropped", "rescheduled"
	)

	DeferredWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "announcarr_deferred_waiting",
			Help: "Deferred downloads still inside their backoff window after the last sweep",
		},
	)
)
