// Package metrics provides Prometheus instrumentation for taskflow components.
//
// # Overview
//
// The metrics package exports counters, gauges and histograms for:
//   - Bounded channels (buffer length, capacity, blocked and rejected puts)
//   - Worker pools (size, active workers, queued jobs, job outcomes and durations)
//   - Timeout governors (expired deadlines, cleanup hook invocations)
//   - Supervisors (dispatched jobs, per-job failures, live consumers)
//
// # Quick Start
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//
//	pool, err := workerpool.NewWithConfigAndMetrics(
//		workerpool.Config{WorkerCount: 4, QueueSize: 16, Metrics: m},
//		"ingest", metrics.Config{Enabled: true, Registry: reg})
//	sup, err := supervisor.New(pool, supervisor.Config{Name: "ingest", Metrics: m})
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// # Available Metrics
//
//   - taskflow_channel_length, taskflow_channel_capacity
//   - taskflow_channel_blocked_puts_total, taskflow_channel_rejected_puts_total
//   - taskflow_workerpool_size, taskflow_workerpool_active_workers, taskflow_workerpool_queued_jobs
//   - taskflow_workerpool_jobs_submitted_total
//   - taskflow_workerpool_jobs_finished_total{outcome="done|failed|cancelled"}
//   - taskflow_workerpool_job_duration_seconds, taskflow_workerpool_job_queue_wait_seconds
//   - taskflow_timeout_expired_total
//   - taskflow_timeout_cleanups_total{outcome="completed|timed_out|cancelled"}
//   - taskflow_supervisor_jobs_dispatched_total, taskflow_supervisor_job_failures_total
//   - taskflow_supervisor_consumers_active
//
// Each component registers under a user-provided name label so several pools
// or supervisors can share one Prometheus registry.
//
// Every component constructor that takes a *Registry accepts nil and then
// records nothing.
package metrics
