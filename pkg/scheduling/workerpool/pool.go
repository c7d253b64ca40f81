package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/report"
	"github.com/vnykmshr/taskflow/pkg/scheduling/future"
	"github.com/vnykmshr/taskflow/pkg/streaming/channel"
)

// Job represents a unit of blocking work that can be executed by a worker.
type Job interface {
	// Execute runs the job with the given context.
	// The context is cancelled when cancellation of the job is requested.
	// Jobs that never check it run to completion.
	Execute(ctx context.Context) (any, error)
}

// JobFunc is a function type that implements the Job interface.
type JobFunc func(ctx context.Context) (any, error)

// Execute implements the Job interface for JobFunc.
func (f JobFunc) Execute(ctx context.Context) (any, error) {
	return f(ctx)
}

// Result describes one finished job execution. It is passed to OnJobComplete.
type Result struct {
	// JobID identifies the job.
	JobID uuid.UUID

	// State is the terminal state of the job's future.
	State future.State

	// Error is the error stored in the future, if any.
	Error error

	// Duration is how long the job took to execute.
	Duration time.Duration

	// QueueWait is how long the job waited in the intake channel.
	QueueWait time.Duration

	// WorkerID identifies which worker executed the job.
	WorkerID int
}

// ShutdownReport lists what Shutdown did to jobs that had not finished.
type ShutdownReport struct {
	// Cancelled holds jobs that were still pending and were cancelled
	// without running.
	Cancelled []uuid.UUID

	// Unfinished holds jobs that were still running when the drain timeout
	// expired.
	Unfinished []uuid.UUID
}

// Pool represents a fixed-size worker pool that executes blocking jobs.
type Pool interface {
	// Submit enqueues job and returns its Pending future.
	// It blocks while the intake is full. Returns an error wrapping
	// ErrClosedChannel after shutdown, or ctx.Err() if ctx ends while blocked.
	// ctx bounds the enqueue only; the job runs under a context that keeps
	// ctx's values but not its cancellation.
	Submit(ctx context.Context, job Job) (*future.Future, error)

	// TrySubmit enqueues job without blocking.
	// Returns an error wrapping ErrQueueFull when the intake is full.
	TrySubmit(job Job) (*future.Future, error)

	// Shutdown stops intake and waits for workers to exit.
	// If cancelPending is true, every job that has not started is cancelled.
	// A zero drainTimeout waits without limit; otherwise jobs still running
	// when it expires are asked to cancel, listed in the report, and the
	// returned error wraps ErrTimeout.
	Shutdown(cancelPending bool, drainTimeout time.Duration) (ShutdownReport, error)

	// Faults returns structural errors detected by workers.
	// The channel is closed once every worker has exited.
	Faults() <-chan error

	// Size returns the number of workers in the pool.
	Size() int

	// QueueSize returns the current number of queued jobs waiting for execution.
	QueueSize() int

	// ActiveWorkers returns the number of workers currently executing jobs.
	ActiveWorkers() int

	// InFlight returns the number of submitted jobs whose future is not terminal.
	InFlight() int

	// TotalSubmitted returns the total number of jobs accepted by the pool.
	TotalSubmitted() int64

	// TotalCompleted returns the total number of jobs executed by the pool.
	TotalCompleted() int64
}

// Config holds configuration options for creating a worker pool.
type Config struct {
	// WorkerCount is the number of workers in the pool.
	// Must be greater than 0.
	WorkerCount int

	// QueueSize is the capacity of the intake channel.
	// Must be greater than 0.
	QueueSize int

	// JobTimeout bounds the execution of each job through its context.
	// Zero means no timeout.
	JobTimeout time.Duration

	// Sink receives structural faults. Defaults to report.Nop.
	Sink report.Sink

	// Name labels the pool and its intake in metrics.
	Name string

	// Metrics receives intake channel metrics when non-nil.
	Metrics *metrics.Registry

	// OnWorkerStart is called when a worker starts.
	// Useful for per-worker initialization (e.g., database connections).
	OnWorkerStart func(workerID int)

	// OnWorkerStop is called when a worker stops.
	// Useful for per-worker cleanup.
	OnWorkerStop func(workerID int)

	// OnJobStart is called before a job begins execution.
	OnJobStart func(workerID int, id uuid.UUID)

	// OnJobComplete is called after a job finishes (success or failure).
	OnJobComplete func(workerID int, result Result)
}

// faultBuffer is the capacity of the Faults channel.
const faultBuffer = 16

// request is the unit carried by the intake channel.
type request struct {
	job      Job
	fut      *future.Future
	ctx      context.Context
	enqueued time.Time
}

// workerPool implements the Pool interface.
type workerPool struct {
	config Config
	sink   report.Sink

	intake channel.Bounded[*request]

	// faults is closed once every worker has exited, guarded by faultsMu.
	faultsMu     sync.Mutex
	faults       chan error
	faultsClosed bool

	// In-flight registry, guarded by mu.
	mu       sync.Mutex
	closed   bool
	inflight map[uuid.UUID]*future.Future

	shutdownOnce sync.Once
	stopped      chan struct{}

	activeWorkers  int32
	totalSubmitted int64
	totalCompleted int64

	workerWg sync.WaitGroup
}

// worker represents a single worker in the pool.
type worker struct {
	id   int
	pool *workerPool
}

// New creates a new worker pool with the specified number of workers and
// intake capacity. It panics on invalid arguments; use NewSafe to get an error.
func New(workerCount, queueSize int) Pool {
	pool, err := NewSafe(workerCount, queueSize)
	if err != nil {
		panic(err)
	}
	return pool
}

// NewSafe is New returning an error instead of panicking.
func NewSafe(workerCount, queueSize int) (Pool, error) {
	return NewWithConfig(Config{
		WorkerCount: workerCount,
		QueueSize:   queueSize,
	})
}

// NewWithConfig creates a new worker pool with the specified configuration.
func NewWithConfig(config Config) (Pool, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	pool := &workerPool{
		config: config,
		sink:   report.OrNop(config.Sink),
		intake: channel.NewWithConfig[*request](channel.Config{
			Capacity: config.QueueSize,
			Strategy: channel.Block,
			Name:     config.Name,
			Metrics:  config.Metrics,
		}),
		faults:   make(chan error, faultBuffer),
		inflight: make(map[uuid.UUID]*future.Future),
		stopped:  make(chan struct{}),
	}

	pool.workerWg.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		w := &worker{id: i, pool: pool}
		go w.run()
	}

	go func() {
		pool.workerWg.Wait()
		pool.closeFaults()
		close(pool.stopped)
	}()

	return pool, nil
}
