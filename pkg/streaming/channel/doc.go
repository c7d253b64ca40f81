/*
Package channel provides a bounded, thread-safe FIFO used as the hand-off
buffer between producers, consumers and worker pools.

Unlike a native Go channel, a Bounded channel can be closed while producers
are blocked on it, reports closure as a typed error rather than a panic,
exposes statistics, and lets Put and Get wait under a context.

Basic usage:

	ch := channel.New[Job](64)
	defer ch.Close()

	// Producer: blocks while the buffer is full.
	if err := ch.Put(ctx, job); err != nil {
		// ErrChannelClosed or ctx.Err()
	}

	// Consumer: blocks while the buffer is empty.
	job, err := ch.Get(ctx)
	if errors.Is(err, channel.ErrChannelClosed) {
		// closed and fully drained
	}

Semantics:

  - Strict FIFO: the nth successful Put is delivered by the nth successful Get.
  - Len never exceeds Cap.
  - Close is idempotent and wakes every blocked Put and Get. After Close, Put
    always fails with ErrChannelClosed while Get keeps returning buffered
    values until the buffer is empty, then reports ErrChannelClosed to every
    current and future caller.
  - A Put or Get that is waiting returns ctx.Err() as soon as its context ends.

Backpressure:

The active policy is explicit in Config.Strategy:

	Block   // Put waits for space (default)
	Reject  // Put fails with ErrChannelFull

TryPut never blocks regardless of strategy.

Thread Safety:

The buffer, the closed flag and statistics are protected by a single mutex
with two condition variables (not-full, not-empty). No other shared state
exists.
*/
package channel
