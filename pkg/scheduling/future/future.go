package future

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
)

// State is the lifecycle state of a Future.
type State int32

const (
	// Pending means the job is queued and has not started.
	Pending State = iota

	// Running means a worker is executing the job.
	Running

	// Done means the job returned a result.
	Done

	// Failed means the job returned or raised an error.
	Failed

	// Cancelled means the job was cancelled, before or during execution.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is Done, Failed or Cancelled.
func (s State) IsTerminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// Future is the result handle of a single job.
type Future struct {
	id uuid.UUID

	mu              sync.Mutex
	state           State
	result          any
	err             error
	cancelRequested bool
	cancelJob       context.CancelFunc
	callbacks       []func(*Future)

	done chan struct{}
}

// New returns a Pending future with a fresh random id.
func New() *Future {
	return NewWithID(uuid.New())
}

// NewWithID returns a Pending future with the given id.
func NewWithID(id uuid.UUID) *Future {
	return &Future{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the job id.
func (f *Future) ID() uuid.UUID {
	return f.id
}

// State returns the current state.
func (f *Future) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done returns a channel that is closed once the future is terminal.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// CancelRequested reports whether Cancel has been called.
func (f *Future) CancelRequested() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelRequested
}

// Result blocks until the future is terminal and returns its outcome.
// A cancelled future returns an error wrapping ErrCancelled.
func (f *Future) Result() (any, error) {
	<-f.done
	return f.outcome()
}

// Await is Result bounded by ctx. If ctx ends first it returns ctx.Err()
// and leaves the future untouched.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.outcome()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation and reports whether the future was
// cancelled outright. Only a Pending future is cancelled immediately.
func (f *Future) Cancel() bool {
	f.mu.Lock()
	switch f.state {
	case Pending:
		f.cancelRequested = true
		f.err = fmt.Errorf("job %s: %w", f.id, gferrors.ErrCancelled)
		callbacks := f.finishLocked(Cancelled)
		f.mu.Unlock()
		f.runCallbacks(callbacks)
		return true
	case Running:
		f.cancelRequested = true
		cancel := f.cancelJob
		f.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return false
	default:
		f.mu.Unlock()
		return false
	}
}

// OnComplete registers fn to run once the future is terminal. If it already
// is, fn runs immediately on the calling goroutine.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if !f.state.IsTerminal() {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}

// Start moves a Pending future to Running and records cancel so that a
// later Cancel reaches the job's context. It returns false without error
// if the future was already cancelled.
func (f *Future) Start(cancel context.CancelFunc) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case Pending:
		f.state = Running
		f.cancelJob = cancel
		return true, nil
	case Cancelled:
		return false, nil
	default:
		return false, f.illegalLocked(Running)
	}
}

// Resolve moves a Running future to Done with value.
func (f *Future) Resolve(value any) error {
	return f.complete(Done, value, nil)
}

// Fail moves a Running future to Failed with err.
func (f *Future) Fail(err error) error {
	return f.complete(Failed, nil, err)
}

// MarkCancelled moves a Running future to Cancelled. It is used when a job
// honoured a cancellation request.
func (f *Future) MarkCancelled() error {
	return f.complete(Cancelled, nil, fmt.Errorf("job %s: %w", f.id, gferrors.ErrCancelled))
}

func (f *Future) complete(to State, value any, err error) error {
	f.mu.Lock()
	if f.state != Running {
		fault := f.illegalLocked(to)
		f.mu.Unlock()
		return fault
	}
	f.result = value
	f.err = err
	callbacks := f.finishLocked(to)
	f.mu.Unlock()

	f.runCallbacks(callbacks)
	return nil
}

// finishLocked sets the terminal state and releases waiters (must hold lock).
func (f *Future) finishLocked(to State) []func(*Future) {
	f.state = to
	f.cancelJob = nil
	close(f.done)

	callbacks := f.callbacks
	f.callbacks = nil
	return callbacks
}

func (f *Future) runCallbacks(callbacks []func(*Future)) {
	for _, fn := range callbacks {
		fn(f)
	}
}

func (f *Future) illegalLocked(to State) error {
	return gferrors.NewFaultError("future", -1,
		fmt.Errorf("job %s: %s -> %s: %w", f.id, f.state, to, gferrors.ErrInvariantViolation))
}

func (f *Future) outcome() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result, f.err
}
