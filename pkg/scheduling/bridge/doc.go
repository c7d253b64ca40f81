/*
Package bridge lets orchestration goroutines hand blocking work to a worker
pool and wait for it without ever blocking on the pool themselves.

RunBlocking returns a Call at once. Submission, which may wait on a full
intake, happens on a helper goroutine; only Await blocks, and only the
goroutine that calls it.

	b := bridge.New(pool)

	call := b.RunBlocking(ctx, job)
	// ... do other work ...
	value, err := call.Await(ctx)

Typed results:

	n, err := bridge.Run(ctx, b, func(ctx context.Context) (int, error) {
		return countRows(ctx, table)
	})

Completion order:

	for call := range bridge.AsCompleted(ctx, calls...) {
		value, err := call.Await(ctx)
		...
	}

Cancellation:

When the context given to Await ends, or Cancel is called, cancellation of
the job is requested. A job still waiting for submission or for a worker is
cancelled outright and never runs. A job already running only sees its context
cancelled: a job that does not poll ctx keeps running to completion on its
worker even though the awaiting goroutine has already moved on. Await
therefore bounds the caller's wait, not the work.
*/
package bridge
