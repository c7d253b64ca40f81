package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/scheduling/future"
	"github.com/vnykmshr/taskflow/pkg/scheduling/workerpool"
)

// Submitter is the part of workerpool.Pool the bridge needs.
type Submitter interface {
	Submit(ctx context.Context, job workerpool.Job) (*future.Future, error)
}

// Bridge submits jobs to a pool on behalf of orchestration goroutines.
type Bridge struct {
	pool Submitter
}

// New returns a Bridge that submits to pool.
func New(pool Submitter) *Bridge {
	return &Bridge{pool: pool}
}

// Call is a job handed to the bridge. It settles once the job's future is
// terminal, or once submission failed.
type Call struct {
	submitted chan struct{}
	done      chan struct{}

	stopSubmit context.CancelFunc

	mu        sync.Mutex
	fut       *future.Future
	err       error
	cancelled bool
}

// RunBlocking submits job from a helper goroutine and returns immediately.
// ctx bounds the submission; values in ctx reach the job.
func (b *Bridge) RunBlocking(ctx context.Context, job workerpool.Job) *Call {
	if ctx == nil {
		ctx = context.Background()
	}
	subCtx, stop := context.WithCancel(ctx)

	c := &Call{
		submitted:  make(chan struct{}),
		done:       make(chan struct{}),
		stopSubmit: stop,
	}

	go func() {
		defer stop()
		fut, err := b.pool.Submit(subCtx, job)

		c.mu.Lock()
		if err != nil && c.cancelled && errors.Is(err, context.Canceled) {
			err = fmt.Errorf("job cancelled before submission: %w", gferrors.ErrCancelled)
		}
		c.fut, c.err = fut, err
		cancelled := c.cancelled
		c.mu.Unlock()
		close(c.submitted)

		if err != nil {
			close(c.done)
			return
		}
		if cancelled {
			fut.Cancel()
		}
		fut.OnComplete(func(*future.Future) { close(c.done) })
	}()

	return c
}

// Await blocks the calling goroutine until the call settles or ctx ends.
// If ctx ends first, cancellation of the job is requested and the returned
// error wraps both ErrCancelled and ctx.Err().
func (c *Call) Await(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.outcome()
	case <-ctx.Done():
		c.Cancel()
		return nil, fmt.Errorf("%w: %w", gferrors.ErrCancelled, ctx.Err())
	}
}

// Result blocks until the call settles and returns its outcome.
func (c *Call) Result() (any, error) {
	<-c.done
	return c.outcome()
}

// Cancel requests cancellation of the job. It is safe to call at any time
// and more than once.
func (c *Call) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	fut := c.fut
	c.mu.Unlock()

	c.stopSubmit()
	if fut != nil {
		fut.Cancel()
	}
}

// Done returns a channel closed once the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Submitted returns a channel closed once submission finished, successfully
// or not.
func (c *Call) Submitted() <-chan struct{} {
	return c.submitted
}

// Future returns the job's future, or nil if the job was not (yet) accepted
// by the pool.
func (c *Call) Future() *future.Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fut
}

func (c *Call) outcome() (any, error) {
	c.mu.Lock()
	fut, err := c.fut, c.err
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return fut.Result()
}

// Run executes fn on the pool and waits for its typed result.
func Run[T any](ctx context.Context, b *Bridge, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	call := b.RunBlocking(ctx, workerpool.JobFunc(func(ctx context.Context) (any, error) {
		return fn(ctx)
	}))
	v, err := call.Await(ctx)
	if err != nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("bridge: result has type %T, want %T", v, zero)
	}
	return typed, nil
}

// AsCompleted delivers calls on the returned channel in the order they
// settle. The channel is closed after every call was delivered or once ctx
// ends.
func AsCompleted(ctx context.Context, calls ...*Call) <-chan *Call {
	out := make(chan *Call, len(calls))

	var wg sync.WaitGroup
	wg.Add(len(calls))
	for _, c := range calls {
		go func(c *Call) {
			defer wg.Done()
			select {
			case <-c.Done():
				out <- c
			case <-ctx.Done():
			}
		}(c)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Gather awaits every call and returns their results in order. Errors are
// joined; a failed call leaves a nil result in its slot.
func Gather(ctx context.Context, calls ...*Call) ([]any, error) {
	results := make([]any, len(calls))
	var errs []error
	for i, c := range calls {
		v, err := c.Await(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = v
	}
	return results, errors.Join(errs...)
}
