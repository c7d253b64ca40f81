/*
Package timeout races an awaitable operation against a deadline.

	gov, _ := timeout.New(timeout.Config{DefaultTimeout: 5 * time.Second})

	call := b.RunBlocking(ctx, job)
	v, err := gov.Run(ctx, call, 2*time.Second, func(s timeout.State) {
		releaseLease()
	})
	if errors.Is(err, gferrors.ErrTimeout) {
		// the deadline won
	}

Each Run moves through Waiting -> {Completed, TimedOut, Cancelled}: Completed
when the operation settles first (successfully or not), TimedOut when the
deadline passes first, Cancelled when the caller's own context ends first.
The cleanup hook runs exactly once on every path, after the outcome is
decided and before Run returns.

On TimedOut and Cancelled, cancellation of the operation is requested. That
only withdraws the caller's interest: an operation running blocking code
that does not poll its context keeps running in the background until it
finishes on its own.
*/
package timeout
