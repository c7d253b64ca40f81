/*
Package scheduling groups the execution side of taskflow: blocking jobs run
on a fixed pool of workers while goroutines coordinate around them.

  - future: write-once job handle with Pending, Running and terminal states
  - workerpool: fixed workers draining a bounded intake, with cancellation
  - bridge: submit blocking jobs without blocking the calling goroutine
  - timeout: race a job against a deadline with an exactly-once cleanup hook
  - supervisor: producers and consumers around a shared bounded channel

Worker Pool:

	pool := workerpool.New(4, 100) // 4 workers, intake of 100
	defer pool.Shutdown(true, 5*time.Second)

	fut, err := pool.Submit(ctx, workerpool.JobFunc(func(ctx context.Context) (any, error) {
		return resize(ctx, img)
	}))
	value, err := fut.Result()

Bridge and Timeout:

	b := bridge.New(pool)
	call := b.RunBlocking(ctx, job) // returns at once
	value, err := timeout.Run(ctx, call, time.Second, nil)

Supervisor:

	sup, _ := supervisor.New(pool, supervisor.Config{Consumers: 3})
	defer sup.Close()
	summary, err := sup.Run(ctx, supervisor.SliceProducer(jobs...))

Cancellation is cooperative. A job that has not started is cancelled
outright; a running job only sees its context cancelled and keeps running
unless it checks it.
*/
package scheduling
