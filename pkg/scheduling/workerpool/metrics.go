package workerpool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/scheduling/future"
)

// MetricsPool wraps a worker Pool with Prometheus metrics collection.
type MetricsPool struct {
	pool     Pool
	name     string
	registry atomic.Pointer[metrics.Registry]
	enabled  atomic.Bool
}

var _ metrics.Instrumentable = (*MetricsPool)(nil)

// NewWithMetrics creates a new worker pool with metrics enabled.
func NewWithMetrics(workerCount, queueSize int, name string) (Pool, error) {
	// Use a separate registry for each metrics-enabled component to avoid conflicts
	config := metrics.Config{
		Enabled:  true,
		Registry: prometheus.NewRegistry(),
	}

	return NewWithConfigAndMetrics(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	}, name, config)
}

// NewWithConfigAndMetrics creates a new worker pool with custom config and metrics.
// The intake channel of the pool reports under the same name. A registry
// already set in config.Metrics is shared instead of creating a new one.
func NewWithConfigAndMetrics(config Config, name string, metricsConfig metrics.Config) (Pool, error) {
	if !metricsConfig.Enabled {
		return NewWithConfig(config)
	}

	registry := config.Metrics
	if registry == nil {
		registry = metrics.DefaultRegistry
		if metricsConfig.Registry != nil {
			registry = metrics.New(metricsConfig)
		}
	}

	config.Name = name
	config.Metrics = registry
	basePool, err := NewWithConfig(config)
	if err != nil {
		return nil, err
	}

	mp := &MetricsPool{
		pool: basePool,
		name: name,
	}
	mp.registry.Store(registry)
	mp.enabled.Store(true)

	// Initialize metrics
	mp.updateMetrics()

	return mp, nil
}

// updateMetrics updates the current state metrics.
func (mp *MetricsPool) updateMetrics() {
	if !mp.enabled.Load() {
		return
	}

	reg := mp.registry.Load()
	reg.WorkerPoolSize.WithLabelValues(mp.name).Set(float64(mp.pool.Size()))
	reg.WorkerPoolActive.WithLabelValues(mp.name).Set(float64(mp.pool.ActiveWorkers()))
	reg.WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(mp.pool.QueueSize()))
}

// Submit enqueues an instrumented copy of job.
func (mp *MetricsPool) Submit(ctx context.Context, job Job) (*future.Future, error) {
	if job == nil {
		return mp.pool.Submit(ctx, nil)
	}
	fut, err := mp.pool.Submit(ctx, mp.wrap(job))
	mp.track(fut, err)
	return fut, err
}

// TrySubmit enqueues an instrumented copy of job without blocking.
func (mp *MetricsPool) TrySubmit(job Job) (*future.Future, error) {
	if job == nil {
		return mp.pool.TrySubmit(nil)
	}
	fut, err := mp.pool.TrySubmit(mp.wrap(job))
	mp.track(fut, err)
	return fut, err
}

func (mp *MetricsPool) wrap(job Job) Job {
	return &metricsJob{
		original:   job,
		pool:       mp,
		submitTime: time.Now(),
	}
}

// track counts an accepted job and records its outcome once terminal.
func (mp *MetricsPool) track(fut *future.Future, err error) {
	if err != nil || !mp.enabled.Load() {
		mp.updateMetrics()
		return
	}

	mp.registry.Load().JobsSubmitted.WithLabelValues(mp.name).Inc()
	mp.updateMetrics()

	fut.OnComplete(func(f *future.Future) {
		if !mp.enabled.Load() {
			return
		}
		mp.registry.Load().JobsFinished.WithLabelValues(mp.name, outcome(f.State())).Inc()
		mp.updateMetrics()
	})
}

func outcome(s future.State) string {
	switch s {
	case future.Done:
		return metrics.OutcomeDone
	case future.Cancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeFailed
	}
}

// metricsJob wraps a Job to collect execution metrics.
type metricsJob struct {
	original   Job
	pool       *MetricsPool
	submitTime time.Time
}

// Execute runs the original job and records metrics.
func (mj *metricsJob) Execute(ctx context.Context) (any, error) {
	start := time.Now()

	if mj.pool.enabled.Load() {
		mj.pool.registry.Load().JobQueueWait.WithLabelValues(mj.pool.name).Observe(start.Sub(mj.submitTime).Seconds())
		mj.pool.updateMetrics()
	}

	value, err := mj.original.Execute(ctx)

	if mj.pool.enabled.Load() {
		mj.pool.registry.Load().JobDuration.WithLabelValues(mj.pool.name).Observe(time.Since(start).Seconds())
	}

	return value, err
}

// Shutdown stops the underlying pool and refreshes the gauges.
func (mp *MetricsPool) Shutdown(cancelPending bool, drainTimeout time.Duration) (ShutdownReport, error) {
	rep, err := mp.pool.Shutdown(cancelPending, drainTimeout)
	mp.updateMetrics()
	return rep, err
}

// Faults returns the underlying pool's fault channel.
func (mp *MetricsPool) Faults() <-chan error {
	return mp.pool.Faults()
}

// Size returns the current number of workers.
func (mp *MetricsPool) Size() int {
	return mp.pool.Size()
}

// QueueSize returns the current number of queued jobs.
func (mp *MetricsPool) QueueSize() int {
	queueSize := mp.pool.QueueSize()

	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolQueued.WithLabelValues(mp.name).Set(float64(queueSize))
	}

	return queueSize
}

// ActiveWorkers returns the number of workers currently executing jobs.
func (mp *MetricsPool) ActiveWorkers() int {
	activeWorkers := mp.pool.ActiveWorkers()

	if mp.enabled.Load() {
		mp.registry.Load().WorkerPoolActive.WithLabelValues(mp.name).Set(float64(activeWorkers))
	}

	return activeWorkers
}

// InFlight returns the number of jobs that are not terminal.
func (mp *MetricsPool) InFlight() int {
	return mp.pool.InFlight()
}

// TotalSubmitted returns the total number of jobs submitted.
func (mp *MetricsPool) TotalSubmitted() int64 {
	return mp.pool.TotalSubmitted()
}

// TotalCompleted returns the total number of jobs completed.
func (mp *MetricsPool) TotalCompleted() int64 {
	return mp.pool.TotalCompleted()
}

// EnableMetrics enables metrics collection.
func (mp *MetricsPool) EnableMetrics(config metrics.Config) error {
	if config.Registry != nil {
		mp.registry.Store(metrics.New(config))
	}
	mp.enabled.Store(config.Enabled)
	mp.updateMetrics()
	return nil
}

// DisableMetrics disables metrics collection.
func (mp *MetricsPool) DisableMetrics() {
	mp.enabled.Store(false)
}

// MetricsEnabled returns true if metrics are currently enabled.
func (mp *MetricsPool) MetricsEnabled() bool {
	return mp.enabled.Load()
}
