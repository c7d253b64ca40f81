package bucket

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
)

// Limit represents the maximum frequency of events per second.
// A zero Limit allows only the initial burst. Use Inf for unlimited rates.
type Limit float64

// Inf is the infinite rate limit; it allows all events.
var Inf = Limit(math.Inf(1))

// ErrExhausted is returned by Wait when the rate is zero and the burst has
// been spent, so no amount of waiting would help.
var ErrExhausted = errors.New("rate limiter exhausted")

// Every converts a minimum time interval between events to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Limiter paces events using a token bucket: tokens refill at Limit per
// second up to Burst, and each event takes one.
type Limiter interface {
	// Allow reports whether an event may happen now. It does not block.
	Allow() bool

	// Wait blocks until an event can happen or ctx ends. A waiter that gives
	// up returns its token.
	Wait(ctx context.Context) error

	// Limit returns the refill rate.
	Limit() Limit

	// Burst returns the bucket size.
	Burst() int

	// Tokens returns the number of tokens currently available. It is
	// negative while waiters hold tokens that have not refilled yet.
	Tokens() float64
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Rate is the number of tokens added per second.
	Rate Limit

	// Burst is the maximum number of tokens that can be stored.
	Burst int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity.
	InitialTokens int
}

// tokenBucket implements Limiter. All fields below mu are guarded by it.
type tokenBucket struct {
	clock Clock

	mu         sync.Mutex
	limit      Limit
	burst      int
	tokens     float64
	lastUpdate time.Time
}

// New creates a limiter and panics on invalid parameters.
func New(rate Limit, burst int) Limiter {
	l, err := NewSafe(rate, burst)
	if err != nil {
		panic(err)
	}
	return l
}

// NewSafe creates a limiter starting with a full bucket.
func NewSafe(rate Limit, burst int) (Limiter, error) {
	return NewWithConfigSafe(Config{
		Rate:          rate,
		Burst:         burst,
		InitialTokens: -1,
	})
}

// NewWithConfigSafe creates a limiter from config.
func NewWithConfigSafe(config Config) (Limiter, error) {
	if config.Rate < 0 || math.IsNaN(float64(config.Rate)) {
		return nil, gferrors.NewValidationError("bucket", "rate", config.Rate, "rate cannot be negative").
			WithHint("use 0 to allow only the burst or bucket.Inf for no limit")
	}
	if config.Burst <= 0 {
		return nil, gferrors.NewValidationError("bucket", "burst", config.Burst, "burst must be positive").
			WithHint("burst determines how many events can happen back to back")
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	initialTokens := float64(config.InitialTokens)
	if config.InitialTokens < 0 || config.InitialTokens > config.Burst {
		initialTokens = float64(config.Burst)
	}

	return &tokenBucket{
		clock:      config.Clock,
		limit:      config.Rate,
		burst:      config.Burst,
		tokens:     initialTokens,
		lastUpdate: config.Clock.Now(),
	}, nil
}
