package timeout

import (
	"context"
	"fmt"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/common/validation"
	"github.com/vnykmshr/taskflow/pkg/metrics"
	"github.com/vnykmshr/taskflow/pkg/scheduling/future"
)

// DefaultTimeout is used when neither the call nor the Config set a timeout.
const DefaultTimeout = 30 * time.Second

// State is the outcome of one Run.
type State int32

const (
	// Waiting means neither the operation nor the deadline has won yet.
	Waiting State = iota

	// Completed means the operation settled before the deadline.
	Completed

	// TimedOut means the deadline passed first.
	TimedOut

	// Cancelled means the caller's context ended first.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Completed:
		return "completed"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Awaitable is an operation that settles once and can be asked to stop.
// *bridge.Call satisfies it; use FromFuture for a *future.Future.
type Awaitable interface {
	// Done is closed once the operation settled.
	Done() <-chan struct{}

	// Result returns the outcome. It is only called after Done is closed.
	Result() (any, error)

	// Cancel requests cancellation.
	Cancel()
}

type futureAwaitable struct {
	*future.Future
}

func (f futureAwaitable) Cancel() { f.Future.Cancel() }

// FromFuture adapts a future to Awaitable.
func FromFuture(f *future.Future) Awaitable {
	return futureAwaitable{f}
}

// Config holds configuration for a Governor.
type Config struct {
	// DefaultTimeout applies when Run is called with a non-positive duration.
	// Zero selects the package DefaultTimeout.
	DefaultTimeout time.Duration

	// Name labels the governor in metrics.
	Name string

	// Metrics receives timeout and cleanup counters when non-nil.
	Metrics *metrics.Registry
}

// Governor runs awaitables under deadlines.
type Governor struct {
	config Config
}

// New creates a Governor.
func New(config Config) (*Governor, error) {
	if config.DefaultTimeout == 0 {
		config.DefaultTimeout = DefaultTimeout
	}
	if err := validation.ValidatePositiveDuration("timeout", "DefaultTimeout", config.DefaultTimeout); err != nil {
		return nil, err
	}
	return &Governor{config: config}, nil
}

// Run waits for op for at most d (DefaultTimeout if d <= 0).
//
// If op settles first, its result is returned. If the deadline passes first,
// op is cancelled and the error wraps ErrTimeout. If ctx ends first, op is
// cancelled and the error wraps both ErrCancelled and ctx.Err(). cleanup, if
// non-nil, is called exactly once with the final state before Run returns.
func (g *Governor) Run(ctx context.Context, op Awaitable, d time.Duration, cleanup func(State)) (any, error) {
	if d <= 0 {
		d = g.config.DefaultTimeout
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r := &race{governor: g, cleanup: cleanup}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-op.Done():
		r.settle(Completed)
		return op.Result()
	case <-timer.C:
	case <-ctx.Done():
	}

	// The operation may have settled at the same instant; a result that is
	// already there wins.
	select {
	case <-op.Done():
		r.settle(Completed)
		return op.Result()
	default:
	}

	op.Cancel()
	if err := ctx.Err(); err != nil {
		r.settle(Cancelled)
		return nil, fmt.Errorf("%w: %w", gferrors.ErrCancelled, err)
	}
	r.settle(TimedOut)
	return nil, fmt.Errorf("no result after %v: %w", d, gferrors.ErrTimeout)
}

// race is the state of one Run.
type race struct {
	governor *Governor
	once     sync.Once
	cleanup  func(State)
}

// settle records the outcome and fires the cleanup hook. Only the first
// call has any effect.
func (r *race) settle(s State) {
	r.once.Do(func() {
		if m := r.governor.config.Metrics; m != nil {
			name := r.governor.config.Name
			if s == TimedOut {
				m.Timeouts.WithLabelValues(name).Inc()
			}
			m.CleanupInvocations.WithLabelValues(name, outcome(s)).Inc()
		}

		if r.cleanup != nil {
			r.cleanup(s)
		}
	})
}

func outcome(s State) string {
	switch s {
	case TimedOut:
		return metrics.OutcomeTimedOut
	case Cancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeCompleted
	}
}

var defaultGovernor = &Governor{config: Config{DefaultTimeout: DefaultTimeout}}

// Run is Governor.Run on a governor with the package defaults.
func Run(ctx context.Context, op Awaitable, d time.Duration, cleanup func(State)) (any, error) {
	return defaultGovernor.Run(ctx, op, d, cleanup)
}
