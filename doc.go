/*
Package taskflow provides a bounded concurrent task pipeline for Go
applications: producers feed a bounded channel, consumers dispatch each job
to a fixed pool of blocking workers, and every wait is governed by a timeout.

Streaming (pkg/streaming):
  - channel: Bounded FIFO with blocking and non-blocking put/get

Scheduling (pkg/scheduling):
  - future: Write-once job handles
  - workerpool: Fixed worker pool with backpressure, cancellation and retry
  - bridge: Await blocking jobs from goroutines without blocking them
  - timeout: Deadline racing with an exactly-once cleanup hook
  - supervisor: Producer/consumer loop with sentinel shutdown and cron producers

Support:
  - config: Defaults, file, environment and flag loading
  - metrics: Prometheus instrumentation
  - report: Sinks for job failures and structural faults

Example usage:

	import (
		"github.com/vnykmshr/taskflow/pkg/scheduling/supervisor"
		"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
	)

	pool := workerpool.New(4, 100) // 4 workers, intake 100
	sup, _ := supervisor.New(pool, supervisor.Config{Consumers: 2})
	defer sup.Close()

	summary, err := sup.Run(ctx, supervisor.SliceProducer(jobs...))
*/
package taskflow
