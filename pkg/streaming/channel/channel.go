package channel

import (
	"context"
	"sync"
	"time"

	"github.com/eapache/queue"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
	"github.com/vnykmshr/taskflow/pkg/metrics"
)

// DefaultCapacity is used when a Config specifies no positive capacity.
const DefaultCapacity = 100

// BackpressureStrategy defines how Put behaves when the buffer is full.
type BackpressureStrategy int

const (
	// Block makes Put wait until space is available. This is the default.
	Block BackpressureStrategy = iota

	// Reject makes Put fail immediately with ErrQueueFull.
	Reject
)

func (s BackpressureStrategy) String() string {
	switch s {
	case Block:
		return "block"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// ErrChannelClosed is returned by Put on a closed channel and by Get once a
// closed channel has been drained.
var ErrChannelClosed = gferrors.ErrClosedChannel

// ErrChannelFull is returned by TryPut, and by Put under the Reject strategy.
var ErrChannelFull = gferrors.ErrQueueFull

// Bounded is a thread-safe FIFO with a fixed capacity.
type Bounded[T any] interface {
	// Put appends value, blocking while the buffer is full.
	// Returns ErrChannelClosed if the channel is closed, or ctx.Err() if the
	// context ends while waiting for space.
	Put(ctx context.Context, value T) error

	// TryPut appends value without blocking.
	TryPut(value T) error

	// Get removes the oldest value, blocking while the buffer is empty and open.
	// After Close, buffered values are still returned; once drained every
	// caller gets ErrChannelClosed.
	Get(ctx context.Context) (T, error)

	// TryGet removes the oldest value without blocking.
	// ok is false when nothing was buffered.
	TryGet() (value T, ok bool, err error)

	// Close stops further puts and wakes every blocked caller. Idempotent.
	Close() error

	// IsClosed returns true once Close has been called.
	IsClosed() bool

	// Len returns the number of buffered values.
	Len() int

	// Cap returns the capacity.
	Cap() int

	// Stats returns a snapshot of channel statistics.
	Stats() Stats
}

// Stats holds statistics about channel usage.
type Stats struct {
	// Puts is the number of successful puts.
	Puts int64

	// Gets is the number of successful gets.
	Gets int64

	// BlockedPuts is the number of puts that had to wait for space.
	BlockedPuts int64

	// RejectedPuts is the number of non-blocking puts refused because the buffer was full.
	RejectedPuts int64

	// HighWaterMark is the largest length ever observed.
	HighWaterMark int

	// Utilization is the current length divided by capacity (0.0 to 1.0).
	Utilization float64

	// LastPutTime is the timestamp of the last successful put.
	LastPutTime time.Time

	// LastGetTime is the timestamp of the last successful get.
	LastGetTime time.Time
}

// Config holds configuration for a Bounded channel.
type Config struct {
	// Capacity is the maximum number of buffered values.
	Capacity int

	// Strategy selects the backpressure policy of Put.
	Strategy BackpressureStrategy

	// OnBlock is called with the lock held when a Put starts waiting.
	// It must not call back into the channel.
	OnBlock func()

	// Name labels the channel in metrics.
	Name string

	// Metrics receives channel gauges and counters when non-nil.
	Metrics *metrics.Registry
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Strategy: Block,
	}
}

// boundedChannel implements Bounded. The buffer, the closed flag and the
// statistics are guarded by mu; notFull and notEmpty share it.
type boundedChannel[T any] struct {
	config Config

	mu       sync.Mutex
	buf      *queue.Queue
	closed   bool
	notFull  *sync.Cond
	notEmpty *sync.Cond

	stats Stats
}

// New creates a blocking Bounded channel with the given capacity.
func New[T any](capacity int) Bounded[T] {
	config := DefaultConfig()
	config.Capacity = capacity
	return NewWithConfig[T](config)
}

// NewWithConfig creates a Bounded channel with the specified configuration.
func NewWithConfig[T any](config Config) Bounded[T] {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}

	ch := &boundedChannel[T]{
		config: config,
		buf:    queue.New(),
	}
	ch.notFull = sync.NewCond(&ch.mu)
	ch.notEmpty = sync.NewCond(&ch.mu)

	if m := config.Metrics; m != nil {
		m.ChannelCapacity.WithLabelValues(config.Name).Set(float64(config.Capacity))
		m.ChannelLength.WithLabelValues(config.Name).Set(0)
	}

	return ch
}

// Put implements Bounded.Put.
func (ch *boundedChannel[T]) Put(ctx context.Context, value T) error {
	if ch.config.Strategy == Reject {
		return ch.TryPut(value)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return ErrChannelClosed
	}

	if ch.buf.Length() >= ch.config.Capacity {
		ch.stats.BlockedPuts++
		if ch.config.OnBlock != nil {
			ch.config.OnBlock()
		}
		if m := ch.config.Metrics; m != nil {
			m.ChannelBlockedPuts.WithLabelValues(ch.config.Name).Inc()
		}

		stop := context.AfterFunc(ctx, ch.wakeAll)
		defer stop()

		for ch.buf.Length() >= ch.config.Capacity && !ch.closed {
			if err := ctx.Err(); err != nil {
				return err
			}
			ch.notFull.Wait()
		}

		if ch.closed {
			return ErrChannelClosed
		}
	}

	return ch.pushLocked(value)
}

// TryPut implements Bounded.TryPut.
func (ch *boundedChannel[T]) TryPut(value T) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return ErrChannelClosed
	}

	if ch.buf.Length() >= ch.config.Capacity {
		ch.stats.RejectedPuts++
		if m := ch.config.Metrics; m != nil {
			m.ChannelRejected.WithLabelValues(ch.config.Name).Inc()
		}
		return ErrChannelFull
	}

	return ch.pushLocked(value)
}

// Get implements Bounded.Get.
func (ch *boundedChannel[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.buf.Length() == 0 && !ch.closed {
		stop := context.AfterFunc(ctx, ch.wakeAll)
		defer stop()

		for ch.buf.Length() == 0 && !ch.closed {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			ch.notEmpty.Wait()
		}
	}

	if ch.buf.Length() == 0 {
		return zero, ErrChannelClosed
	}

	return ch.popLocked()
}

// TryGet implements Bounded.TryGet.
func (ch *boundedChannel[T]) TryGet() (T, bool, error) {
	var zero T

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.buf.Length() == 0 {
		if ch.closed {
			return zero, false, ErrChannelClosed
		}
		return zero, false, nil
	}

	value, err := ch.popLocked()
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// Close implements Bounded.Close.
func (ch *boundedChannel[T]) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true

	ch.notFull.Broadcast()
	ch.notEmpty.Broadcast()

	return nil
}

// IsClosed implements Bounded.IsClosed.
func (ch *boundedChannel[T]) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed
}

// Len implements Bounded.Len.
func (ch *boundedChannel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.buf.Length()
}

// Cap implements Bounded.Cap.
func (ch *boundedChannel[T]) Cap() int {
	return ch.config.Capacity
}

// Stats implements Bounded.Stats.
func (ch *boundedChannel[T]) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	stats := ch.stats
	stats.Utilization = float64(ch.buf.Length()) / float64(ch.config.Capacity)
	return stats
}

// wakeAll is registered with context.AfterFunc so blocked callers re-check
// their context once it is done.
func (ch *boundedChannel[T]) wakeAll() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.notFull.Broadcast()
	ch.notEmpty.Broadcast()
}

// pushLocked appends a value (must hold lock).
func (ch *boundedChannel[T]) pushLocked(value T) error {
	if ch.buf.Length() >= ch.config.Capacity {
		return gferrors.NewFaultError("channel", -1, gferrors.ErrInvariantViolation)
	}

	ch.buf.Add(value)
	n := ch.buf.Length()

	ch.stats.Puts++
	ch.stats.LastPutTime = time.Now()
	if n > ch.stats.HighWaterMark {
		ch.stats.HighWaterMark = n
	}
	if m := ch.config.Metrics; m != nil {
		m.ChannelLength.WithLabelValues(ch.config.Name).Set(float64(n))
	}

	ch.notEmpty.Broadcast()
	return nil
}

// popLocked removes the oldest value (must hold lock and have checked Length > 0).
func (ch *boundedChannel[T]) popLocked() (T, error) {
	var zero T

	if ch.buf.Length() > ch.config.Capacity {
		return zero, gferrors.NewFaultError("channel", -1, gferrors.ErrInvariantViolation)
	}

	value, _ := ch.buf.Remove().(T)
	n := ch.buf.Length()

	ch.stats.Gets++
	ch.stats.LastGetTime = time.Now()
	if m := ch.config.Metrics; m != nil {
		m.ChannelLength.WithLabelValues(ch.config.Name).Set(float64(n))
	}

	ch.notFull.Broadcast()
	return value, nil
}
