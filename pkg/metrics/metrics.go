// Package metrics provides Prometheus instrumentation for taskflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for JobsFinished and CleanupInvocations.
const (
	OutcomeDone      = "done"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
	OutcomeCompleted = "completed"
	OutcomeTimedOut  = "timed_out"
)

// Registry holds all metric instances for taskflow components.
type Registry struct {
	// Bounded channel
	ChannelLength      *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelBlockedPuts *prometheus.CounterVec
	ChannelRejected    *prometheus.CounterVec

	// Worker pool
	WorkerPoolSize   *prometheus.GaugeVec
	WorkerPoolActive *prometheus.GaugeVec
	WorkerPoolQueued *prometheus.GaugeVec
	JobsSubmitted    *prometheus.CounterVec
	JobsFinished     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobQueueWait     *prometheus.HistogramVec

	// Timeout governor
	Timeouts           *prometheus.CounterVec
	CleanupInvocations *prometheus.CounterVec

	// Supervisor
	JobsDispatched   *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	ConsumersActive  *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by taskflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer
// under the default namespace.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return New(Config{Enabled: true, Registry: reg, Namespace: DefaultNamespace})
}

// New creates a metrics registry from a Config. A nil Registry falls back to
// prometheus.DefaultRegisterer and an empty Namespace to DefaultNamespace.
func New(cfg Config) *Registry {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		ChannelLength: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "channel",
				Name:      "length",
				Help:      "Number of items currently buffered",
			},
			[]string{"channel_name"},
		),

		ChannelCapacity: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "channel",
				Name:      "capacity",
				Help:      "Configured buffer capacity",
			},
			[]string{"channel_name"},
		),

		ChannelBlockedPuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "channel",
				Name:      "blocked_puts_total",
				Help:      "Total number of puts that had to wait for space",
			},
			[]string{"channel_name"},
		),

		ChannelRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "channel",
				Name:      "rejected_puts_total",
				Help:      "Total number of non-blocking puts rejected because the buffer was full",
			},
			[]string{"channel_name"},
		),

		WorkerPoolSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "size",
				Help:      "Number of workers in the pool",
			},
			[]string{"pool_name"},
		),

		WorkerPoolActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "active_workers",
				Help:      "Number of workers currently executing a job",
			},
			[]string{"pool_name"},
		),

		WorkerPoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "queued_jobs",
				Help:      "Number of jobs waiting in the intake queue",
			},
			[]string{"pool_name"},
		),

		JobsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "jobs_submitted_total",
				Help:      "Total number of jobs accepted by the pool",
			},
			[]string{"pool_name"},
		),

		JobsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "jobs_finished_total",
				Help:      "Total number of jobs that reached a terminal state",
			},
			[]string{"pool_name", "outcome"},
		),

		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "job_duration_seconds",
				Help:      "Time spent executing jobs",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		JobQueueWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "workerpool",
				Name:      "job_queue_wait_seconds",
				Help:      "Time jobs spent queued before a worker picked them up",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		Timeouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "timeout",
				Name:      "expired_total",
				Help:      "Total number of awaited operations that exceeded their deadline",
			},
			[]string{"governor_name"},
		),

		CleanupInvocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "timeout",
				Name:      "cleanups_total",
				Help:      "Total number of cleanup hook invocations",
			},
			[]string{"governor_name", "outcome"},
		),

		JobsDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "supervisor",
				Name:      "jobs_dispatched_total",
				Help:      "Total number of jobs dispatched by consumers",
			},
			[]string{"supervisor_name"},
		),

		DispatchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "supervisor",
				Name:      "job_failures_total",
				Help:      "Total number of dispatched jobs that did not complete successfully",
			},
			[]string{"supervisor_name"},
		),

		ConsumersActive: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Subsystem: "supervisor",
				Name:      "consumers_active",
				Help:      "Number of consumers still running",
			},
			[]string{"supervisor_name"},
		),
	}
}
