package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	gfcontext "github.com/vnykmshr/taskflow/pkg/common/context"
	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/common/validation"
	"github.com/vnykmshr/taskflow/pkg/scheduling/future"
	"github.com/vnykmshr/taskflow/pkg/streaming/channel"
)

func (c Config) validate() error {
	if err := validation.ValidatePositive("workerpool", "WorkerCount", c.WorkerCount); err != nil {
		return err
	}
	if err := validation.ValidatePositive("workerpool", "QueueSize", c.QueueSize); err != nil {
		return err
	}
	return validation.ValidateNonNegativeDuration("workerpool", "JobTimeout", c.JobTimeout)
}

// Submit implements Pool.Submit.
func (p *workerPool) Submit(ctx context.Context, job Job) (*future.Future, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Check if context is already canceled before attempting to queue.
	if err := ctx.Err(); err != nil {
		return nil, gferrors.NewOperationError("workerpool", "Submit", err)
	}
	if p.isClosed() {
		return nil, gferrors.NewOperationError("workerpool", "Submit", gferrors.ErrClosedChannel)
	}

	req := p.newRequest(ctx, job)
	if err := p.intake.Put(ctx, req); err != nil {
		return nil, p.submitError("Submit", err)
	}
	p.accept(req)
	return req.fut, nil
}

// TrySubmit implements Pool.TrySubmit.
func (p *workerPool) TrySubmit(job Job) (*future.Future, error) {
	if job == nil {
		return nil, fmt.Errorf("job cannot be nil")
	}
	if p.isClosed() {
		return nil, gferrors.NewOperationError("workerpool", "TrySubmit", gferrors.ErrClosedChannel)
	}

	req := p.newRequest(context.Background(), job)
	if err := p.intake.TryPut(req); err != nil {
		return nil, p.submitError("TrySubmit", err)
	}
	p.accept(req)
	return req.fut, nil
}

func (p *workerPool) newRequest(ctx context.Context, job Job) *request {
	return &request{
		job:      job,
		fut:      future.New(),
		ctx:      ctx,
		enqueued: time.Now(),
	}
}

// accept registers an enqueued request as in flight. The registration is
// dropped by the future's completion callback, which runs immediately if a
// worker already finished it.
func (p *workerPool) accept(req *request) {
	atomic.AddInt64(&p.totalSubmitted, 1)

	id := req.fut.ID()
	p.mu.Lock()
	p.inflight[id] = req.fut
	p.mu.Unlock()

	req.fut.OnComplete(func(*future.Future) {
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
	})
}

func (p *workerPool) submitError(operation string, err error) error {
	if gferrors.IsStructural(err) {
		p.fault(err)
	}
	return gferrors.NewOperationError("workerpool", operation, err).
		WithContext(fmt.Sprintf("queue %d/%d", p.intake.Len(), p.intake.Cap()))
}

func (p *workerPool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Shutdown implements Pool.Shutdown.
func (p *workerPool) Shutdown(cancelPending bool, drainTimeout time.Duration) (ShutdownReport, error) {
	var rep ShutdownReport

	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		_ = p.intake.Close()
	})

	if cancelPending {
		rep.Cancelled = p.cancelPending()
	}

	var timeout <-chan time.Time
	if drainTimeout > 0 {
		timer := time.NewTimer(drainTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-p.stopped:
		return rep, nil
	case <-timeout:
	}

	for _, fut := range p.snapshot() {
		if fut.State().IsTerminal() {
			continue
		}
		rep.Unfinished = append(rep.Unfinished, fut.ID())
		fut.Cancel()
	}
	if len(rep.Unfinished) == 0 {
		return rep, nil
	}
	return rep, fmt.Errorf("workerpool: %d jobs unfinished after %v: %w",
		len(rep.Unfinished), drainTimeout, gferrors.ErrTimeout)
}

// cancelPending drains the closed intake and cancels every queued job, then
// cancels jobs a worker has dequeued but not yet started.
func (p *workerPool) cancelPending() []uuid.UUID {
	var cancelled []uuid.UUID

	for {
		req, ok, err := p.intake.TryGet()
		if err != nil && !errors.Is(err, channel.ErrChannelClosed) {
			p.fault(gferrors.NewFaultError("workerpool", -1, err))
		}
		if !ok {
			break
		}
		if req.fut.Cancel() {
			cancelled = append(cancelled, req.fut.ID())
		}
	}

	for _, fut := range p.snapshot() {
		if fut.State() == future.Pending && fut.Cancel() {
			cancelled = append(cancelled, fut.ID())
		}
	}

	return cancelled
}

func (p *workerPool) snapshot() []*future.Future {
	p.mu.Lock()
	defer p.mu.Unlock()

	futs := make([]*future.Future, 0, len(p.inflight))
	for _, fut := range p.inflight {
		futs = append(futs, fut)
	}
	return futs
}

// Faults implements Pool.Faults.
func (p *workerPool) Faults() <-chan error {
	return p.faults
}

// fault reports a structural error to the sink and the Faults channel.
// The sink always sees it; the channel drops it if nobody is draining, and
// once it has been closed after the last worker exited.
func (p *workerPool) fault(err error) {
	p.sink.Fault(err)

	p.faultsMu.Lock()
	defer p.faultsMu.Unlock()
	if p.faultsClosed {
		return
	}
	select {
	case p.faults <- err:
	default:
	}
}

// closeFaults closes the Faults channel; later faults reach only the sink.
func (p *workerPool) closeFaults() {
	p.faultsMu.Lock()
	defer p.faultsMu.Unlock()
	p.faultsClosed = true
	close(p.faults)
}

// Size returns the number of workers in the pool.
func (p *workerPool) Size() int {
	return p.config.WorkerCount
}

// QueueSize returns the current number of queued jobs waiting for execution.
func (p *workerPool) QueueSize() int {
	return p.intake.Len()
}

// ActiveWorkers returns the number of workers currently executing jobs.
func (p *workerPool) ActiveWorkers() int {
	return int(atomic.LoadInt32(&p.activeWorkers))
}

// InFlight returns the number of registered jobs that are not terminal.
func (p *workerPool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

// TotalSubmitted returns the total number of jobs accepted by the pool.
func (p *workerPool) TotalSubmitted() int64 {
	return atomic.LoadInt64(&p.totalSubmitted)
}

// TotalCompleted returns the total number of jobs executed by the pool.
func (p *workerPool) TotalCompleted() int64 {
	return atomic.LoadInt64(&p.totalCompleted)
}

// run is the main loop for a worker.
func (w *worker) run() {
	p := w.pool
	defer p.workerWg.Done()

	defer func() {
		if r := recover(); r != nil {
			p.fault(gferrors.NewFaultError("workerpool", w.id,
				fmt.Errorf("%w: worker panicked: %v", gferrors.ErrInvariantViolation, r)))
		}
	}()

	if p.config.OnWorkerStart != nil {
		p.config.OnWorkerStart(w.id)
	}
	if p.config.OnWorkerStop != nil {
		defer p.config.OnWorkerStop(w.id)
	}

	for {
		req, err := p.intake.Get(context.Background())
		if err != nil {
			if !errors.Is(err, channel.ErrChannelClosed) {
				p.fault(gferrors.NewFaultError("workerpool", w.id, err))
			}
			return
		}
		w.execute(req)
	}
}

// execute runs one job and resolves its future.
func (w *worker) execute(req *request) {
	p := w.pool

	base, detach := gfcontext.Detach(req.ctx)
	defer detach()
	ctx, cancel := gfcontext.WithTimeoutOrCancel(base, p.config.JobTimeout)
	defer cancel()

	started, err := req.fut.Start(cancel)
	if err != nil {
		p.fault(gferrors.NewFaultError("workerpool", w.id, err))
		return
	}
	if !started {
		// Cancelled while queued; the job is never invoked.
		return
	}

	id := req.fut.ID()
	atomic.AddInt32(&p.activeWorkers, 1)
	if p.config.OnJobStart != nil {
		p.config.OnJobStart(w.id, id)
	}

	start := time.Now()
	value, jobErr := call(ctx, req.job)
	duration := time.Since(start)
	atomic.AddInt32(&p.activeWorkers, -1)

	var finishErr error
	switch {
	case jobErr == nil:
		finishErr = req.fut.Resolve(value)
	case req.fut.CancelRequested() && errors.Is(jobErr, context.Canceled):
		finishErr = req.fut.MarkCancelled()
	case gfcontext.IsTimedOut(ctx):
		finishErr = req.fut.Fail(gferrors.NewJobExecutionError(id,
			fmt.Errorf("exceeded job timeout of %v: %w: %w", p.config.JobTimeout, gferrors.ErrTimeout, jobErr)))
	default:
		finishErr = req.fut.Fail(gferrors.NewJobExecutionError(id, jobErr))
	}
	if finishErr != nil {
		p.fault(gferrors.NewFaultError("workerpool", w.id, finishErr))
	}

	atomic.AddInt64(&p.totalCompleted, 1)

	if p.config.OnJobComplete != nil {
		_, resultErr := req.fut.Result()
		p.config.OnJobComplete(w.id, Result{
			JobID:     id,
			State:     req.fut.State(),
			Error:     resultErr,
			Duration:  duration,
			QueueWait: start.Sub(req.enqueued),
			WorkerID:  w.id,
		})
	}
}

// call executes job, recovering a panic into an error.
func call(ctx context.Context, job Job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("job panicked: %v\nStack trace:\n%s", r, debug.Stack())
		}
	}()
	return job.Execute(ctx)
}
