/*
Package streaming holds the data-flow primitives shared by producers,
consumers and the worker pool.

  - channel: bounded, context-aware FIFO with explicit close semantics

Basic usage:

	ch := channel.New[Job](64)

	// producer
	if err := ch.Put(ctx, job); err != nil {
		return err // closed or ctx done
	}

	// consumer
	for {
		job, err := ch.Get(ctx)
		if errors.Is(err, channel.ErrChannelClosed) {
			return nil // closed and drained
		}
		...
	}
*/
package streaming
