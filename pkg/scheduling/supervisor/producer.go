package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
)

// Emit hands one job to the supervisor. It blocks while the job channel is
// full and fails once the loop is stopping.
type Emit func(job workerpool.Job) error

// Producer generates jobs until it returns. It must return once ctx is done.
type Producer func(ctx context.Context, emit Emit) error

// SliceProducer emits jobs in order.
func SliceProducer(jobs ...workerpool.Job) Producer {
	return func(ctx context.Context, emit Emit) error {
		for _, job := range jobs {
			if err := emit(job); err != nil {
				return err
			}
		}
		return nil
	}
}

// Waiter paces emission; bucket.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Throttle wraps p so that every emit first waits on limiter.
func Throttle(limiter Waiter, p Producer) Producer {
	return func(ctx context.Context, emit Emit) error {
		return p(ctx, func(job workerpool.Job) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			return emit(job)
		})
	}
}

// cronParser accepts an optional seconds field and descriptors.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// CronProducer emits newJob(run) at every activation of the cron expression,
// maxRuns times (0 = until ctx ends).
func CronProducer(expr string, maxRuns int, newJob func(run int) workerpool.Job) (Producer, error) {
	if expr == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression '%s': %w", expr, err)
	}
	return ScheduleProducer(schedule, maxRuns, newJob), nil
}

// ScheduleProducer is CronProducer for an already parsed schedule.
func ScheduleProducer(schedule cron.Schedule, maxRuns int, newJob func(run int) workerpool.Job) Producer {
	return func(ctx context.Context, emit Emit) error {
		for run := 0; maxRuns <= 0 || run < maxRuns; run++ {
			now := time.Now()
			next := schedule.Next(now)
			if next.IsZero() {
				// The schedule has no further activations.
				return nil
			}

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				if maxRuns <= 0 {
					return nil
				}
				return ctx.Err()
			case <-timer.C:
			}

			if err := emit(newJob(run)); err != nil {
				return err
			}
		}
		return nil
	}
}
