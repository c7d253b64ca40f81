package bucket

import (
	"context"
	"math"
	"time"
)

// Allow implements Limiter.Allow.
func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.limit == Inf {
		return true
	}

	tb.updateTokens(tb.clock.Now())
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// Wait implements Limiter.Wait.
func (tb *tokenBucket) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	delay, err := tb.take()
	if err != nil || delay <= 0 {
		return err
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		tb.giveBack()
		return ctx.Err()
	}
}

// take removes one token, possibly going negative, and returns how long
// the caller must wait for it to refill.
func (tb *tokenBucket) take() (time.Duration, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	if tb.limit == Inf {
		return 0, nil
	}

	tb.updateTokens(tb.clock.Now())
	if tb.limit == 0 && tb.tokens < 1 {
		return 0, ErrExhausted
	}

	tb.tokens--
	if tb.tokens >= 0 {
		return 0, nil
	}
	return time.Duration(float64(time.Second) * -tb.tokens / float64(tb.limit)), nil
}

// giveBack returns a token whose waiter gave up.
func (tb *tokenBucket) giveBack() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	tb.tokens = math.Min(tb.tokens+1, float64(tb.burst))
}

// Limit implements Limiter.Limit.
func (tb *tokenBucket) Limit() Limit {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limit
}

// Burst implements Limiter.Burst.
func (tb *tokenBucket) Burst() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.burst
}

// Tokens implements Limiter.Tokens.
func (tb *tokenBucket) Tokens() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.updateTokens(tb.clock.Now())
	return tb.tokens
}

// updateTokens refills based on the time elapsed since the last update
// (must hold lock).
func (tb *tokenBucket) updateTokens(now time.Time) {
	if tb.limit == Inf {
		tb.tokens = float64(tb.burst)
		tb.lastUpdate = now
		return
	}

	elapsed := now.Sub(tb.lastUpdate)
	if elapsed <= 0 {
		return
	}
	tb.lastUpdate = now

	if tb.limit == 0 {
		return
	}
	tb.tokens = math.Min(tb.tokens+elapsed.Seconds()*float64(tb.limit), float64(tb.burst))
}
