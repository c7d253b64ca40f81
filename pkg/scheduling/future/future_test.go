package future

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/taskflow/internal/testutil"
	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
)

func TestNewFutureIsPending(t *testing.T) {
	f := New()
	testutil.AssertEqual(t, f.State(), Pending)
	testutil.AssertNotEqual(t, f.ID(), uuid.Nil)
	testutil.AssertEqual(t, f.CancelRequested(), false)

	select {
	case <-f.Done():
		t.Fatal("pending future reported done")
	default:
	}
}

func TestResolve(t *testing.T) {
	f := New()

	started, err := f.Start(func() {})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, started, true)
	testutil.AssertEqual(t, f.State(), Running)

	testutil.AssertNoError(t, f.Resolve(5))
	testutil.AssertEqual(t, f.State(), Done)

	v, err := f.Result()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, any(5))
}

func TestFail(t *testing.T) {
	f := New()
	_, _ = f.Start(nil)

	boom := errors.New("boom")
	testutil.AssertNoError(t, f.Fail(boom))
	testutil.AssertEqual(t, f.State(), Failed)

	_, err := f.Result()
	testutil.AssertErrorIs(t, err, boom)
}

func TestTerminalStateIsWriteOnce(t *testing.T) {
	f := New()
	_, _ = f.Start(nil)
	testutil.AssertNoError(t, f.Resolve("first"))

	err := f.Fail(errors.New("late"))
	testutil.AssertErrorIs(t, err, gferrors.ErrInvariantViolation)
	testutil.AssertEqual(t, gferrors.IsStructural(err), true)

	testutil.AssertErrorIs(t, f.Resolve("second"), gferrors.ErrInvariantViolation)
	testutil.AssertErrorIs(t, f.MarkCancelled(), gferrors.ErrInvariantViolation)

	_, err = f.Start(nil)
	testutil.AssertErrorIs(t, err, gferrors.ErrInvariantViolation)

	v, err := f.Result()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, any("first"))
	testutil.AssertEqual(t, f.State(), Done)
}

func TestResolveFromPendingIsRejected(t *testing.T) {
	f := New()
	testutil.AssertErrorIs(t, f.Resolve(1), gferrors.ErrInvariantViolation)
	testutil.AssertEqual(t, f.State(), Pending)
}

func TestCancelPending(t *testing.T) {
	f := New()

	testutil.AssertEqual(t, f.Cancel(), true)
	testutil.AssertEqual(t, f.State(), Cancelled)
	testutil.AssertEqual(t, f.CancelRequested(), true)

	_, err := f.Result()
	testutil.AssertErrorIs(t, err, gferrors.ErrCancelled)

	// A worker dequeuing it afterwards must skip it.
	started, err := f.Start(nil)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, started, false)
}

func TestCancelRunningOnlyRequests(t *testing.T) {
	f := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, _ = f.Start(cancel)

	testutil.AssertEqual(t, f.Cancel(), false)
	testutil.AssertEqual(t, f.State(), Running)
	testutil.AssertEqual(t, f.CancelRequested(), true)
	testutil.AssertErrorIs(t, ctx.Err(), context.Canceled)

	// The job ignored the request and finished normally.
	testutil.AssertNoError(t, f.Resolve("finished anyway"))
	v, err := f.Result()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, v, any("finished anyway"))
}

func TestCancelRunningHonoured(t *testing.T) {
	f := New()
	_, _ = f.Start(func() {})
	f.Cancel()

	testutil.AssertNoError(t, f.MarkCancelled())
	testutil.AssertEqual(t, f.State(), Cancelled)
	_, err := f.Result()
	testutil.AssertErrorIs(t, err, gferrors.ErrCancelled)
}

func TestCancelAfterDoneIsNoop(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*Future) error
		state  State
	}{
		{"done", func(f *Future) error { return f.Resolve(42) }, Done},
		{"failed", func(f *Future) error { return f.Fail(errors.New("x")) }, Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New()
			_, _ = f.Start(nil)
			testutil.AssertNoError(t, tt.finish(f))

			v1, err1 := f.Result()
			testutil.AssertEqual(t, f.Cancel(), false)
			testutil.AssertEqual(t, f.State(), tt.state)
			testutil.AssertEqual(t, f.CancelRequested(), false)

			v2, err2 := f.Result()
			testutil.AssertEqual(t, v2, v1)
			testutil.AssertEqual(t, err2, err1)
		})
	}
}

func TestAwaitContext(t *testing.T) {
	f := New()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
	testutil.AssertEqual(t, f.State(), Pending)
}

func TestManyWaitersSeeSameOutcome(t *testing.T) {
	f := New()

	const waiters = 10
	results := make(chan any, waiters)
	var wg sync.WaitGroup
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _ := f.Await(context.Background())
			results <- v
		}()
	}

	_, _ = f.Start(nil)
	testutil.AssertNoError(t, f.Resolve("shared"))
	wg.Wait()
	close(results)

	for v := range results {
		testutil.AssertEqual(t, v, any("shared"))
	}
}

func TestOnComplete(t *testing.T) {
	f := New()
	tracker := testutil.NewCallbackTracker()
	f.OnComplete(func(done *Future) { tracker.Mark(done.State()) })

	tracker.AssertCallCount(t, 0)
	f.Cancel()
	tracker.AssertCallCount(t, 1)
	testutil.AssertEqual(t, tracker.Value(), any(Cancelled))

	// Registration after completion runs immediately.
	late := testutil.NewCallbackTracker()
	f.OnComplete(func(*Future) { late.Mark() })
	late.AssertCallCount(t, 1)

	// Further no-op cancels do not re-run callbacks.
	f.Cancel()
	tracker.AssertCallCount(t, 1)
}

func TestConcurrentCancelAndStart(t *testing.T) {
	for i := 0; i < 200; i++ {
		f := New()
		var started bool
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.Cancel()
		}()
		go func() {
			defer wg.Done()
			ok, err := f.Start(func() {})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			started = ok
		}()
		wg.Wait()

		if started {
			testutil.AssertEqual(t, f.State(), Running)
			testutil.AssertEqual(t, f.CancelRequested(), true)
		} else {
			testutil.AssertEqual(t, f.State(), Cancelled)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Pending, "pending"},
		{Running, "running"},
		{Done, "done"},
		{Failed, "failed"},
		{Cancelled, "cancelled"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		testutil.AssertEqual(t, tt.state.String(), tt.want)
	}

	testutil.AssertEqual(t, Pending.IsTerminal(), false)
	testutil.AssertEqual(t, Running.IsTerminal(), false)
	testutil.AssertEqual(t, Cancelled.IsTerminal(), true)
}
