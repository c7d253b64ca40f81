package main

import (
	"context"
	"fmt"
	"time"

	"github.com/vnykmshr/taskflow/pkg/scheduling/supervisor"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
)

// workload describes the synthetic jobs produced by the run command.
type workload struct {
	Jobs      int
	Producers int
	Duration  time.Duration
	FailEvery int
	Retries   uint
	Cron      string
}

// job returns the nth synthetic job. It sleeps for Duration unless its
// context is cancelled first.
func (w workload) job(n int) workerpool.Job {
	var job workerpool.Job = workerpool.JobFunc(func(ctx context.Context) (any, error) {
		timer := time.NewTimer(w.Duration)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if w.FailEvery > 0 && (n+1)%w.FailEvery == 0 {
			return nil, fmt.Errorf("synthetic failure of job %d", n)
		}
		return n, nil
	})

	if w.Retries > 0 {
		policy := workerpool.DefaultRetryPolicy()
		policy.MaxTries = w.Retries + 1
		// Synthetic failures are retried whatever their kind.
		policy.Retryable = nil
		job = workerpool.Retry(job, policy)
	}
	return job
}

// producers splits Jobs across Producers, or emits them on the cron schedule.
func (w workload) producers() ([]supervisor.Producer, error) {
	if w.Jobs < 0 {
		return nil, fmt.Errorf("jobs cannot be negative")
	}

	if w.Cron != "" {
		p, err := supervisor.CronProducer(w.Cron, w.Jobs, w.job)
		if err != nil {
			return nil, err
		}
		return []supervisor.Producer{p}, nil
	}

	n := w.Producers
	if n <= 0 {
		n = 1
	}

	buckets := make([][]workerpool.Job, n)
	for i := 0; i < w.Jobs; i++ {
		buckets[i%n] = append(buckets[i%n], w.job(i))
	}

	producers := make([]supervisor.Producer, n)
	for i, jobs := range buckets {
		producers[i] = supervisor.SliceProducer(jobs...)
	}
	return producers, nil
}
