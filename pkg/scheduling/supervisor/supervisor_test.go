package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vnykmshr/taskflow/internal/testutil"
	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/ratelimit/bucket"
	"github.com/vnykmshr/taskflow/pkg/scheduling/supervisor"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskflow/pkg/streaming/channel"
)

// faultyPool lets a test inject structural faults into a real pool.
type faultyPool struct {
	workerpool.Pool
	faults chan error
}

func (p *faultyPool) Faults() <-chan error { return p.faults }

// every is a cron schedule with sub-second resolution.
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func valueJob(v any) workerpool.Job {
	return workerpool.JobFunc(func(context.Context) (any, error) { return v, nil })
}

func failingJob(err error) workerpool.Job {
	return workerpool.JobFunc(func(context.Context) (any, error) { return nil, err })
}

var _ = Describe("Supervisor", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		pool   workerpool.Pool
		sink   *testutil.RecordingSink
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		var err error
		pool, err = workerpool.NewSafe(4, 8)
		Expect(err).NotTo(HaveOccurred())

		sink = testutil.NewRecordingSink()
	})

	AfterEach(func() {
		cancel()
		_, _ = pool.Shutdown(true, 0)
	})

	Context("New", func() {
		It("should reject a nil pool", func() {
			_, err := supervisor.New(nil, supervisor.Config{})
			Expect(err).To(MatchError(gferrors.ErrInvalidConfiguration))
		})

		It("should reject a negative consumer count", func() {
			_, err := supervisor.New(pool, supervisor.Config{Consumers: -1})
			Expect(gferrors.IsValidationError(err)).To(BeTrue())
		})

		It("should reject a negative drain timeout", func() {
			_, err := supervisor.New(pool, supervisor.Config{DrainTimeout: -time.Second})
			Expect(err).To(MatchError(gferrors.ErrInvalidConfiguration))
		})
	})

	Context("Run", func() {
		// Given three consumers and jobs from two producers
		// When every producer is done
		// Then every job completes and each consumer observes end-of-stream once
		It("should dispatch every job and terminate every consumer", func() {
			var (
				mu      sync.Mutex
				results []any
			)
			sup, err := supervisor.New(pool, supervisor.Config{
				Consumers:     3,
				QueueCapacity: 2,
				Sink:          sink,
				OnResult: func(_ uuid.UUID, v any) {
					mu.Lock()
					results = append(results, v)
					mu.Unlock()
				},
			})
			Expect(err).NotTo(HaveOccurred())

			var first, second []workerpool.Job
			for i := 0; i < 10; i++ {
				first = append(first, valueJob(i))
				second = append(second, valueJob(100+i))
			}

			summary, err := sup.Run(ctx, supervisor.SliceProducer(first...), supervisor.SliceProducer(second...))
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Produced).To(BeEquivalentTo(20))
			Expect(summary.Dispatched).To(BeEquivalentTo(20))
			Expect(summary.Completed).To(BeEquivalentTo(20))
			Expect(summary.Terminations).To(BeEquivalentTo(3))
			Expect(results).To(HaveLen(20))
			Expect(results).To(ContainElements(0, 9, 100, 109))
			Expect(sink.Failures()).To(BeZero())
		})

		It("should terminate every consumer when nothing is produced", func() {
			sup, err := supervisor.New(pool, supervisor.Config{Consumers: 5})
			Expect(err).NotTo(HaveOccurred())

			summary, err := sup.Run(ctx, supervisor.SliceProducer())
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Terminations).To(BeEquivalentTo(5))
			Expect(summary.Dispatched).To(BeZero())
		})

		It("should terminate when there are no producers at all", func() {
			sup, err := supervisor.New(pool, supervisor.Config{Consumers: 2})
			Expect(err).NotTo(HaveOccurred())

			summary, err := sup.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Terminations).To(BeEquivalentTo(2))
		})

		// Given a mix of successful, failing and slow jobs
		// When they are dispatched
		// Then failures are reported and counted without stopping the loop
		It("should keep going after per-job failures and timeouts", func() {
			sup, err := supervisor.New(pool, supervisor.Config{
				Consumers:  2,
				JobTimeout: 50 * time.Millisecond,
				Sink:       sink,
			})
			Expect(err).NotTo(HaveOccurred())

			boom := errors.New("boom")
			slow := workerpool.JobFunc(func(context.Context) (any, error) {
				time.Sleep(300 * time.Millisecond)
				return "too late", nil
			})

			summary, err := sup.Run(ctx, supervisor.SliceProducer(
				valueJob(1),
				failingJob(boom),
				slow,
				valueJob(2),
				workerpool.JobFunc(func(context.Context) (any, error) { panic("bad job") }),
				valueJob(3),
			))
			Expect(err).NotTo(HaveOccurred())

			Expect(summary.Dispatched).To(BeEquivalentTo(6))
			Expect(summary.Completed).To(BeEquivalentTo(3))
			Expect(summary.Failed).To(BeEquivalentTo(2))
			Expect(summary.TimedOut).To(BeEquivalentTo(1))
			Expect(summary.Terminations).To(BeEquivalentTo(2))
			Expect(sink.Failures()).To(Equal(3))
			Expect(sink.Faults()).To(BeEmpty())
		})

		// Given a pool that reports a structural fault mid-run
		// When the supervisor observes it
		// Then intake stops, the pool is drained and the fault is returned
		It("should stop and return a structural fault", func() {
			faulty := &faultyPool{Pool: pool, faults: make(chan error, 1)}
			sup, err := supervisor.New(faulty, supervisor.Config{
				Consumers:    2,
				DrainTimeout: time.Second,
				Sink:         sink,
			})
			Expect(err).NotTo(HaveOccurred())

			var emitted int32
			endless := func(ctx context.Context, emit supervisor.Emit) error {
				for {
					if err := emit(valueJob(nil)); err != nil {
						return err
					}
					if atomic.AddInt32(&emitted, 1) == 5 {
						faulty.faults <- gferrors.NewFaultError("workerpool", 0, gferrors.ErrInvariantViolation)
					}
				}
			}

			_, err = sup.Run(ctx, endless)
			Expect(err).To(HaveOccurred())
			Expect(gferrors.IsStructural(err)).To(BeTrue())
			Expect(err).To(MatchError(gferrors.ErrInvariantViolation))
			Expect(sink.Faults()).To(HaveLen(1))

			_, err = pool.Submit(context.Background(), valueJob(1))
			Expect(err).To(MatchError(gferrors.ErrClosedChannel))
		})

		// Given a running loop whose pool reports a structural fault
		// When the fault is read from another goroutine during Run
		// Then it becomes visible there and matches what Run returns
		It("should expose the recorded fault while running", func() {
			faulty := &faultyPool{Pool: pool, faults: make(chan error, 1)}
			sup, err := supervisor.New(faulty, supervisor.Config{DrainTimeout: time.Second})
			Expect(err).NotTo(HaveOccurred())
			Expect(sup.Fault()).To(BeNil())

			release := make(chan struct{})
			blocked := func(ctx context.Context, emit supervisor.Emit) error {
				if err := emit(valueJob(nil)); err != nil {
					return err
				}
				faulty.faults <- gferrors.NewFaultError("workerpool", 0, gferrors.ErrInvariantViolation)
				select {
				case <-release:
				case <-ctx.Done():
				}
				return nil
			}

			done := make(chan error, 1)
			go func() {
				_, err := sup.Run(ctx, blocked)
				done <- err
			}()

			Eventually(sup.Fault).WithTimeout(2 * time.Second).Should(MatchError(gferrors.ErrInvariantViolation))
			close(release)

			var runErr error
			Eventually(done).WithTimeout(2 * time.Second).Should(Receive(&runErr))
			Expect(runErr).To(MatchError(sup.Fault()))
		})

		// Given jobs whose own errors wrap channel-closed and structural errors
		// When they fail on a worker
		// Then they count as job failures and the remaining jobs still complete
		It("should not mistake a job's own error for a fault", func() {
			sup, err := supervisor.New(pool, supervisor.Config{
				Consumers: 2,
				Sink:      sink,
			})
			Expect(err).NotTo(HaveOccurred())

			closedPut := workerpool.JobFunc(func(ctx context.Context) (any, error) {
				ch := channel.New[int](1)
				_ = ch.Close()
				return nil, ch.Put(ctx, 1)
			})
			brokenInvariant := failingJob(gferrors.NewFaultError("cache", -1, gferrors.ErrInvariantViolation))

			summary, err := sup.Run(ctx, supervisor.SliceProducer(
				closedPut,
				valueJob(1),
				valueJob(2),
				brokenInvariant,
				valueJob(3),
				valueJob(4),
				valueJob(5),
			))
			Expect(err).NotTo(HaveOccurred())
			Expect(sup.Fault()).To(BeNil())

			Expect(summary.Produced).To(BeEquivalentTo(7))
			Expect(summary.Dispatched).To(BeEquivalentTo(7))
			Expect(summary.Completed).To(BeEquivalentTo(5))
			Expect(summary.Failed).To(BeEquivalentTo(2))
			Expect(summary.Terminations).To(BeEquivalentTo(2))
			Expect(sink.Failures()).To(Equal(2))
			Expect(sink.Faults()).To(BeEmpty())

			fut, err := pool.Submit(context.Background(), valueJob(6))
			Expect(err).NotTo(HaveOccurred())
			Expect(fut.Result()).To(Equal(6))
		})

		It("should treat a pool that stopped accepting work as a fault", func() {
			_, err := pool.Shutdown(false, 0)
			Expect(err).NotTo(HaveOccurred())

			sup, err := supervisor.New(pool, supervisor.Config{Sink: sink})
			Expect(err).NotTo(HaveOccurred())

			_, err = sup.Run(ctx, supervisor.SliceProducer(valueJob(1)))
			Expect(err).To(MatchError(gferrors.ErrClosedChannel))
			Expect(gferrors.IsStructural(err)).To(BeTrue())
		})

		It("should stop when the context ends", func() {
			sup, err := supervisor.New(pool, supervisor.Config{Consumers: 2})
			Expect(err).NotTo(HaveOccurred())

			short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
			defer stop()

			endless := func(ctx context.Context, emit supervisor.Emit) error {
				for {
					if err := emit(valueJob(nil)); err != nil {
						return err
					}
				}
			}

			summary, err := sup.Run(short, endless)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(summary.Terminations).To(BeZero())
			Expect(summary.Produced).To(BeNumerically(">", 0))
		})

		It("should join producer errors without stopping the loop", func() {
			sup, err := supervisor.New(pool, supervisor.Config{})
			Expect(err).NotTo(HaveOccurred())

			broken := errors.New("source unavailable")
			summary, err := sup.Run(ctx,
				func(context.Context, supervisor.Emit) error { return broken },
				supervisor.SliceProducer(valueJob(1), valueJob(2)),
			)
			Expect(err).To(MatchError(broken))
			Expect(summary.Completed).To(BeEquivalentTo(2))
			Expect(summary.Terminations).To(BeEquivalentTo(1))
		})

		It("should refuse to run twice", func() {
			sup, err := supervisor.New(pool, supervisor.Config{})
			Expect(err).NotTo(HaveOccurred())

			_, err = sup.Run(ctx)
			Expect(err).NotTo(HaveOccurred())
			_, err = sup.Run(ctx)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("Close", func() {
		It("should shut the owned pool down", func() {
			sup, err := supervisor.New(pool, supervisor.Config{})
			Expect(err).NotTo(HaveOccurred())

			Expect(sup.Close()).To(Succeed())
			_, err = pool.TrySubmit(valueJob(1))
			Expect(err).To(MatchError(gferrors.ErrClosedChannel))
		})
	})

	Context("Producers", func() {
		It("should emit on a schedule until maxRuns", func() {
			sup, err := supervisor.New(pool, supervisor.Config{})
			Expect(err).NotTo(HaveOccurred())

			producer := supervisor.ScheduleProducer(every(5*time.Millisecond), 4, func(run int) workerpool.Job {
				return valueJob(run)
			})

			summary, err := sup.Run(ctx, producer)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Produced).To(BeEquivalentTo(4))
			Expect(summary.Completed).To(BeEquivalentTo(4))
		})

		It("should parse cron expressions with and without seconds", func() {
			_, err := supervisor.CronProducer("*/5 * * * * *", 1, func(int) workerpool.Job { return valueJob(nil) })
			Expect(err).NotTo(HaveOccurred())

			_, err = supervisor.CronProducer("@hourly", 1, func(int) workerpool.Job { return valueJob(nil) })
			Expect(err).NotTo(HaveOccurred())

			_, err = supervisor.CronProducer("not a schedule", 1, func(int) workerpool.Job { return valueJob(nil) })
			Expect(err).To(HaveOccurred())

			_, err = supervisor.CronProducer("", 1, func(int) workerpool.Job { return valueJob(nil) })
			Expect(err).To(HaveOccurred())
		})

		It("should stop an unbounded schedule when the loop stops", func() {
			producer := supervisor.ScheduleProducer(every(time.Hour), 0, func(int) workerpool.Job { return valueJob(nil) })

			short, stop := context.WithTimeout(ctx, 10*time.Millisecond)
			defer stop()
			Expect(producer(short, func(workerpool.Job) error { return nil })).To(Succeed())
		})
	})
})

var _ = Describe("Throttle", func() {
	It("should pace emission through the limiter", func() {
		// Given a limiter allowing a burst of one and a refill every 20ms
		limiter := bucket.New(bucket.Every(20*time.Millisecond), 1)
		var emitted int

		// When four jobs are emitted through the throttled producer
		start := time.Now()
		producer := supervisor.Throttle(limiter, supervisor.SliceProducer(
			valueJob(1), valueJob(2), valueJob(3), valueJob(4),
		))
		err := producer(context.Background(), func(workerpool.Job) error {
			emitted++
			return nil
		})

		// Then all are emitted, spaced by the refill interval
		Expect(err).NotTo(HaveOccurred())
		Expect(emitted).To(Equal(4))
		Expect(time.Since(start)).To(BeNumerically(">=", 50*time.Millisecond))
	})

	It("should stop when the limiter gives up", func() {
		limiter := bucket.New(0, 1)
		producer := supervisor.Throttle(limiter, supervisor.SliceProducer(valueJob(1), valueJob(2)))

		var emitted int
		err := producer(context.Background(), func(workerpool.Job) error {
			emitted++
			return nil
		})
		Expect(err).To(MatchError(bucket.ErrExhausted))
		Expect(emitted).To(Equal(1))
	})
})
