package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/common/validation"
	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/report"
	"github.com/vnykmshr/taskflow/pkg/scheduling/bridge"
	"github.com/vnykmshr/taskflow/pkg/scheduling/timeout"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskflow/pkg/streaming/channel"
)

// Config holds configuration for a Supervisor.
type Config struct {
	// Consumers is the number of consumer goroutines. Defaults to 1.
	Consumers int

	// QueueCapacity is the capacity of the job channel between producers
	// and consumers. Defaults to channel.DefaultCapacity.
	QueueCapacity int

	// JobTimeout bounds how long a consumer waits for each job.
	// Zero selects timeout.DefaultTimeout.
	JobTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight work when the loop stops on
	// a fault, and in Close. Zero waits without limit.
	DrainTimeout time.Duration

	// Name labels the supervisor, its channel and governor in metrics.
	Name string

	// Sink receives per-job failures and structural faults.
	Sink report.Sink

	// Metrics receives supervisor metrics when non-nil.
	Metrics *metrics.Registry

	// OnResult is called by a consumer for every job that completed
	// successfully. It must be safe for concurrent use.
	OnResult func(id uuid.UUID, value any)
}

// Summary counts what one Run did.
type Summary struct {
	// Produced is the number of jobs emitted by producers.
	Produced int64

	// Dispatched is the number of jobs consumers handed to the pool.
	Dispatched int64

	// Completed is the number of jobs that returned a result.
	Completed int64

	// Failed is the number of jobs that returned or raised an error.
	Failed int64

	// TimedOut is the number of jobs whose wait exceeded JobTimeout.
	TimedOut int64

	// Cancelled is the number of jobs that ended cancelled.
	Cancelled int64

	// Terminations is the number of consumers that observed end-of-stream.
	Terminations int64
}

// envelope is the unit carried by the job channel.
type envelope struct {
	job      workerpool.Job
	sentinel bool
}

// Supervisor runs producers and consumers around a pool it owns.
type Supervisor struct {
	config   Config
	pool     workerpool.Pool
	bridge   *bridge.Bridge
	governor *timeout.Governor
	sink     report.Sink

	started atomic.Bool

	produced     atomic.Int64
	dispatched   atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	timedOut     atomic.Int64
	cancelled    atomic.Int64
	terminations atomic.Int64

	faultOnce sync.Once
	fault     atomic.Pointer[error]
	stop      context.CancelCauseFunc
}

// New creates a Supervisor that dispatches into pool. The supervisor owns
// the pool from then on; Close shuts it down.
func New(pool workerpool.Pool, config Config) (*Supervisor, error) {
	if err := validation.ValidateNotNil("supervisor", "pool", pool); err != nil {
		return nil, err
	}
	if config.Consumers == 0 {
		config.Consumers = 1
	}
	if config.QueueCapacity == 0 {
		config.QueueCapacity = channel.DefaultCapacity
	}
	if err := validation.ValidatePositive("supervisor", "Consumers", config.Consumers); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositive("supervisor", "QueueCapacity", config.QueueCapacity); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("supervisor", "DrainTimeout", config.DrainTimeout); err != nil {
		return nil, err
	}
	if err := validation.ValidateNonNegativeDuration("supervisor", "JobTimeout", config.JobTimeout); err != nil {
		return nil, err
	}

	governor, err := timeout.New(timeout.Config{
		DefaultTimeout: config.JobTimeout,
		Name:           config.Name,
		Metrics:        config.Metrics,
	})
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		config:   config,
		pool:     pool,
		bridge:   bridge.New(pool),
		governor: governor,
		sink:     report.OrNop(config.Sink),
	}, nil
}

// Run starts the consumers and producers and blocks until every consumer has
// observed end-of-stream, a structural fault occurred, or ctx ended.
// Producer errors do not stop the loop; they are joined into the returned
// error. Run may be called once.
func (s *Supervisor) Run(ctx context.Context, producers ...Producer) (Summary, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Summary{}, fmt.Errorf("supervisor: Run called twice")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	runCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	s.stop = stop

	jobs := channel.NewWithConfig[envelope](channel.Config{
		Capacity: s.config.QueueCapacity,
		Strategy: channel.Block,
		Name:     s.config.Name,
		Metrics:  s.config.Metrics,
	})
	defer jobs.Close()

	var helpers sync.WaitGroup
	helpers.Add(1)
	go func() {
		defer helpers.Done()
		s.watchFaults(runCtx)
	}()

	var live atomic.Int32
	live.Store(int32(s.config.Consumers))
	s.setConsumersActive(s.config.Consumers)

	var consumers sync.WaitGroup
	consumers.Add(s.config.Consumers)
	for i := 0; i < s.config.Consumers; i++ {
		go func() {
			defer consumers.Done()
			s.consume(runCtx, jobs, &live)
		}()
	}

	var (
		producerErrs []error
		errMu        sync.Mutex
	)
	emit := func(job workerpool.Job) error {
		if job == nil {
			return fmt.Errorf("job cannot be nil")
		}
		if err := runCtx.Err(); err != nil {
			return err
		}
		if err := jobs.Put(runCtx, envelope{job: job}); err != nil {
			if gferrors.IsStructural(err) {
				s.fail(err)
			}
			return err
		}
		s.produced.Add(1)
		return nil
	}

	helpers.Add(1)
	go func() {
		defer helpers.Done()

		var producing sync.WaitGroup
		producing.Add(len(producers))
		for _, p := range producers {
			go func(p Producer) {
				defer producing.Done()
				if err := p(runCtx, emit); err != nil && runCtx.Err() == nil {
					errMu.Lock()
					producerErrs = append(producerErrs, err)
					errMu.Unlock()
				}
			}(p)
		}
		producing.Wait()
		if runCtx.Err() != nil {
			return
		}

		if err := jobs.Put(runCtx, envelope{sentinel: true}); err != nil && gferrors.IsStructural(err) {
			s.fail(err)
		}
	}()

	consumers.Wait()
	stop(nil)
	helpers.Wait()

	summary := s.Summary()
	if fault := s.Fault(); fault != nil {
		_, drainErr := s.pool.Shutdown(true, s.config.DrainTimeout)
		return summary, errors.Join(fmt.Errorf("supervisor: stopped on fault: %w", fault), drainErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("supervisor: %w", err)
	}
	return summary, errors.Join(producerErrs...)
}

// consume pulls envelopes until end-of-stream or until the loop stops.
func (s *Supervisor) consume(ctx context.Context, jobs channel.Bounded[envelope], live *atomic.Int32) {
	defer func() {
		s.setConsumersActive(int(live.Load()))
	}()

	for {
		if ctx.Err() != nil {
			// Stopping; whatever is still buffered is abandoned.
			live.Add(-1)
			return
		}

		env, err := jobs.Get(ctx)
		if err != nil {
			if gferrors.IsStructural(err) {
				s.fail(err)
			}
			live.Add(-1)
			return
		}

		if env.sentinel {
			s.terminations.Add(1)
			if live.Add(-1) > 0 {
				// Pass end-of-stream on to the consumers still running.
				if err := jobs.Put(ctx, env); err != nil && gferrors.IsStructural(err) {
					s.fail(err)
				}
			}
			return
		}

		s.dispatch(ctx, env.job)
	}
}

// dispatch runs one job through the bridge under the governor and accounts
// for its outcome.
func (s *Supervisor) dispatch(ctx context.Context, job workerpool.Job) {
	s.dispatched.Add(1)
	if m := s.config.Metrics; m != nil {
		m.JobsDispatched.WithLabelValues(s.config.Name).Inc()
	}

	call := s.bridge.RunBlocking(ctx, job)
	value, err := s.governor.Run(ctx, call, s.config.JobTimeout, nil)

	id := uuid.Nil
	if fut := call.Future(); fut != nil {
		id = fut.ID()
	}

	var jobErr *gferrors.JobExecutionError
	switch {
	case err == nil:
		s.completed.Add(1)
		if s.config.OnResult != nil {
			s.config.OnResult(id, value)
		}
		return
	case errors.As(err, &jobErr):
		// The job's own error, whatever it wraps.
		s.failed.Add(1)
	case isSubmitFault(call, err):
		s.fail(gferrors.NewFaultError("supervisor", -1, err))
		return
	case ctx.Err() != nil:
		// The loop is stopping; the job was cancelled on the way out.
		s.cancelled.Add(1)
		return
	case errors.Is(err, gferrors.ErrTimeout):
		s.timedOut.Add(1)
	case errors.Is(err, gferrors.ErrCancelled):
		s.cancelled.Add(1)
	default:
		s.failed.Add(1)
	}

	if m := s.config.Metrics; m != nil {
		m.DispatchFailures.WithLabelValues(s.config.Name).Inc()
	}
	s.sink.JobFailed(id, err)
}

// isSubmitFault reports whether err means the pool itself can no longer take
// work. Only errors raised before the pool accepted the job qualify.
func isSubmitFault(call *bridge.Call, err error) bool {
	if call.Future() != nil {
		return gferrors.IsStructural(err)
	}
	return gferrors.IsStructural(err) || errors.Is(err, gferrors.ErrClosedChannel)
}

// watchFaults forwards pool faults until the loop stops.
func (s *Supervisor) watchFaults(ctx context.Context) {
	faults := s.pool.Faults()
	for {
		select {
		case err, ok := <-faults:
			if !ok {
				return
			}
			s.fail(err)
		case <-ctx.Done():
			return
		}
	}
}

// fail records the first structural fault and stops the loop.
func (s *Supervisor) fail(err error) {
	s.faultOnce.Do(func() {
		s.fault.Store(&err)
		s.sink.Fault(err)
		s.stop(err)
	})
}

// Fault returns the structural fault that stopped the loop, or nil.
// It is safe to call while Run is in progress.
func (s *Supervisor) Fault() error {
	if fault := s.fault.Load(); fault != nil {
		return *fault
	}
	return nil
}

func (s *Supervisor) setConsumersActive(n int) {
	if m := s.config.Metrics; m != nil {
		m.ConsumersActive.WithLabelValues(s.config.Name).Set(float64(n))
	}
}

// Summary returns the counters of the current or last Run.
func (s *Supervisor) Summary() Summary {
	return Summary{
		Produced:     s.produced.Load(),
		Dispatched:   s.dispatched.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
		TimedOut:     s.timedOut.Load(),
		Cancelled:    s.cancelled.Load(),
		Terminations: s.terminations.Load(),
	}
}

// Close shuts the pool down, cancelling jobs that have not started and
// waiting up to DrainTimeout for the rest.
func (s *Supervisor) Close() error {
	_, err := s.pool.Shutdown(true, s.config.DrainTimeout)
	return err
}
