package context

import (
	"context"
	"testing"
	"time"

	"github.com/vnykmshr/taskflow/internal/testutil"
)

type ctxKey struct{}

func TestDetachKeepsValuesDropsCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "job-42"))
	detached, cancel := Detach(parent)
	defer cancel()

	cancelParent()
	testutil.AssertEqual(t, IsCanceled(detached), false)
	testutil.AssertEqual(t, detached.Value(ctxKey{}).(string), "job-42")

	cancel()
	testutil.AssertEqual(t, IsCanceled(detached), true)
	testutil.AssertEqual(t, IsTimedOut(detached), false)
}

func TestWithTimeoutOrCancel(t *testing.T) {
	ctx, cancel := WithTimeoutOrCancel(context.Background(), 10*time.Millisecond)
	defer cancel()

	<-ctx.Done()
	testutil.AssertEqual(t, IsTimedOut(ctx), true)

	ctx2, cancel2 := WithTimeoutOrCancel(context.Background(), 0)
	_, hasDeadline := ctx2.Deadline()
	testutil.AssertEqual(t, hasDeadline, false)
	cancel2()
	testutil.AssertEqual(t, IsCanceled(ctx2), true)
}
