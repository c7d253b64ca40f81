/*
Package workerpool provides a fixed-size pool of workers that execute blocking
jobs and resolve a future for each of them.

A worker pool manages a fixed number of worker goroutines that pull jobs from a
bounded intake channel. Submitting never runs the job on the caller's
goroutine: it returns a Pending future, and exactly one worker later moves that
future to Running and then to Done, Failed or Cancelled.

Basic usage:

	pool := workerpool.New(4, 100) // 4 workers, intake capacity 100
	defer pool.Shutdown(false, 0)

	job := workerpool.JobFunc(func(ctx context.Context) (any, error) {
		return fetch(ctx, url)
	})

	fut, err := pool.Submit(ctx, job)
	if err != nil {
		log.Printf("Failed to submit: %v", err)
	}

	body, err := fut.Result()

Job Interface:

Jobs implement a simple interface:

	type Job interface {
		Execute(ctx context.Context) (any, error)
	}

Errors returned by a job, and panics raised by it, are stored in its future as
a JobExecutionError tagged with the job id. They never stop a worker.

Submission and Backpressure:

	// Blocks while the intake is full; ctx bounds the wait.
	fut, err := pool.Submit(ctx, job)

	// Fails immediately with ErrQueueFull when the intake is full.
	fut, err := pool.TrySubmit(job)

ctx bounds the enqueue only. The job runs under a context that keeps ctx's
values but not its cancellation, so that the caller going away does not
abort work a worker already started. Use the future to cancel.

Cancellation:

fut.Cancel() on a job that has not started cancels it outright; the job is
never invoked. On a running job it only cancels the job's context. A job
that never checks ctx (a plain time.Sleep, a blocking syscall) runs to
completion and its future still ends Done or Failed. Jobs that want to be
stoppable must poll ctx.Done().

Shutdown:

	report, err := pool.Shutdown(true, 5*time.Second)

Shutdown closes the intake. With cancelPending, every job that has not started
is cancelled and listed in report.Cancelled. It then waits for workers up to
the drain timeout (zero waits without limit). Jobs still unfinished are asked
to cancel, listed in report.Unfinished, and err wraps ErrTimeout.

Structural Faults:

Broken internal invariants (an intake over capacity, an illegal future
transition, a panic in worker bookkeeping) are sent on Faults() and to the
configured report.Sink. They indicate the pool cannot be trusted anymore; the
owner is expected to shut it down.

Configuration Options:

	config := workerpool.Config{
		WorkerCount: 8,
		QueueSize:   1000,
		JobTimeout:  30 * time.Second,
		Sink:        report.NewZap(logger),
		OnJobComplete: func(workerID int, result workerpool.Result) {
			log.Printf("Worker %d finished %s in %v", workerID, result.JobID, result.Duration)
		},
	}
	pool, err := workerpool.NewWithConfig(config)

Retries:

	job = workerpool.Retry(job, workerpool.DefaultRetryPolicy())

Retry re-executes a failing job with exponential backoff and stops between
attempts once cancellation is requested or JobTimeout expires. The default
policy retries only errors that wrap ErrTimeout or ErrQueueFull.

Monitoring and Metrics:

The pool provides real-time state:

	pool.Size()           // number of workers
	pool.QueueSize()      // jobs waiting in the intake
	pool.ActiveWorkers()  // workers executing a job
	pool.InFlight()       // accepted jobs whose future is not terminal
	pool.TotalSubmitted()
	pool.TotalCompleted()

NewWithMetrics and NewWithConfigAndMetrics export the same state, plus job
durations, queue waits and outcomes, as Prometheus metrics.

Thread Safety:

All Pool methods are safe for concurrent use.
*/
package workerpool
