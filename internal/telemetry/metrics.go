package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── API ─────────────────────────────────────────────────────────────────────

	APITasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "api",
		Name:      "tasks_submitted_total",
		Help:      "Upload requests by outcome (accepted, rejected, error).",
	}, []string{"outcome"})

	// ─── Worker ──────────────────────────────────────────────────────────────────

	WorkerTasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "worker",
		Name:      "tasks_processed_total",
		Help:      "Jobs handled by the worker, labelled by terminal status or skipped.",
	}, []string{"status"})

	WorkerTasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bloodreport",
		Subsystem: "worker",
		Name:      "tasks_inflight",
		Help:      "Jobs currently running through the pipeline.",
	})

	WorkerTaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "bloodreport",
		Subsystem: "worker",
		Name:      "task_duration_seconds",
		Help:      "End-to-end pipeline time per job.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	WorkerRequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "worker",
		Name:      "requeued_total",
		Help:      "Stale claims moved back to the queue by the reaper.",
	})

	// ─── Pipeline ────────────────────────────────────────────────────────────────

	PipelineStagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "pipeline",
		Name:      "stages_total",
		Help:      "Stage outcomes, labelled by stage and ok/degraded.",
	}, []string{"stage", "outcome"})

	LLMAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "llm",
		Name:      "attempts_total",
		Help:      "Completion attempts by outcome (ok, empty, error).",
	}, []string{"outcome"})

	LLMExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bloodreport",
		Subsystem: "llm",
		Name:      "exhausted_total",
		Help:      "Completions that failed on every attempt.",
	})
)
