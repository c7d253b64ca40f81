// Package supervisor runs a producer/consumer loop on top of a worker pool.
//
// Producers emit jobs into a bounded channel. Consumers pull them and dispatch
// each one through a bridge.Bridge into the pool, waiting for it under a
// timeout.Governor. When every producer has returned, a single end-of-stream
// sentinel is put on the channel; each consumer that takes it re-enqueues it
// for the consumers still running, then exits. Every consumer therefore sees
// end-of-stream exactly once.
//
//	pool := workerpool.New(4, 64)
//	sup, err := supervisor.New(pool, supervisor.Config{Consumers: 3})
//	if err != nil {
//		return err
//	}
//	defer sup.Close()
//
//	summary, err := sup.Run(ctx,
//		supervisor.SliceProducer(jobs...),
//	)
//
// # Failures
//
// A job that fails, is cancelled or times out is reported to the configured
// report.Sink and counted in the Summary; the loop carries on. This holds
// whatever the job's own error wraps. A structural fault (a corrupted channel,
// a pool fault, a pool that stopped accepting work) stops intake, shuts the
// pool down with the configured drain timeout so that in-flight work can
// finish, and is returned from Run.
//
// # Scheduled producers
//
//	p, err := supervisor.CronProducer("*/5 * * * * *", 10, func(run int) workerpool.Job {
//		return poll(run)
//	})
//
// CronProducer accepts standard cron expressions with an optional leading
// seconds field and descriptors such as @hourly.
package supervisor
