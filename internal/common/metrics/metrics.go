package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	SequenceAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sequence_allocations_total",
			Help: "Sequence numbers allocated, by code kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	NotificationsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_finished_total",
			Help: "Notification records that reached a terminal state",
		},
		[]string{"template", "channel", "status"},
	)

	NotificationsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_queued_total",
			Help: "Notification records created in the queued state",
		},
		[]string{"template"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatch_duration_seconds",
			Help:    "Time spent in a single channel delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_total",
			Help: "Scheduler cycles by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	SchedulerItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_items_total",
			Help: "Items handled by scheduler tasks",
		},
		[]string{"task", "result"},
	)
)
