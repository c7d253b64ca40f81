/*
Package future provides the write-once handle that connects code submitting
blocking work with the worker that eventually runs it.

A Future moves through the states

	Pending -> Running -> {Done, Failed, Cancelled}
	Pending -> Cancelled

and never leaves a terminal state. Any number of goroutines may wait on the
same Future through Done, Result or Await; all of them observe the same
terminal state.

Cancellation:

Cancel on a Pending future resolves it to Cancelled immediately and the job is
never run. Cancel on a Running future only requests cancellation: the job's
context is cancelled and CancelRequested reports true, but a job that never
looks at its context runs to completion and the future still ends Done or
Failed. Cancel on a terminal future is a no-op.

The transition methods (Start, Resolve, Fail, MarkCancelled) are intended for
the single worker that owns the job. A transition that does not start from the
expected state is rejected with an error wrapping ErrInvariantViolation.
*/
package future
