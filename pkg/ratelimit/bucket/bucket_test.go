package bucket

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/taskflow/internal/testutil"
	gferrors "github.com/vnykmshr/taskflow/pkg/common/errors"
)

// MockClock implements Clock for testing
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newMocked(t *testing.T, rate Limit, burst int) (Limiter, *MockClock) {
	t.Helper()
	clock := &MockClock{now: time.Unix(0, 0)}
	l, err := NewWithConfigSafe(Config{Rate: rate, Burst: burst, Clock: clock, InitialTokens: -1})
	testutil.AssertNoError(t, err)
	return l, clock
}

func TestNewSafe(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid parameters", 10, 5, false},
		{"zero rate", 0, 5, false},
		{"infinite rate", Inf, 5, false},
		{"negative rate", -1, 5, true},
		{"NaN rate", Limit(math.NaN()), 5, true},
		{"zero burst", 10, 0, true},
		{"negative burst", 10, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := NewSafe(tt.rate, tt.burst)
			if tt.wantErr {
				testutil.AssertErrorIs(t, err, gferrors.ErrInvalidConfiguration)
				testutil.AssertEqual(t, limiter, nil)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, limiter.Limit(), tt.rate)
			testutil.AssertEqual(t, limiter.Burst(), tt.burst)
			testutil.AssertEqual(t, limiter.Tokens(), float64(tt.burst))
		})
	}
}

func TestNewPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for zero burst")
		}
	}()
	New(1, 0)
}

func TestEvery(t *testing.T) {
	testutil.AssertEqual(t, Every(100*time.Millisecond), Limit(10))
	testutil.AssertEqual(t, Every(2*time.Second), Limit(0.5))
	testutil.AssertEqual(t, math.IsInf(float64(Every(0)), 1), true)
	testutil.AssertEqual(t, math.IsInf(float64(Every(-time.Second)), 1), true)
}

func TestAllowRefills(t *testing.T) {
	l, clock := newMocked(t, 10, 2)

	testutil.AssertEqual(t, l.Allow(), true)
	testutil.AssertEqual(t, l.Allow(), true)
	testutil.AssertEqual(t, l.Allow(), false)

	clock.Advance(100 * time.Millisecond)
	testutil.AssertEqual(t, l.Allow(), true)
	testutil.AssertEqual(t, l.Allow(), false)

	// Refill never exceeds the burst.
	clock.Advance(time.Hour)
	testutil.AssertEqual(t, l.Tokens(), 2.0)
}

func TestAllowInfinite(t *testing.T) {
	l, _ := newMocked(t, Inf, 1)
	for i := 0; i < 100; i++ {
		testutil.AssertEqual(t, l.Allow(), true)
	}
}

func TestWaitWithinBurstDoesNotBlock(t *testing.T) {
	l, _ := newMocked(t, 1, 3)
	for i := 0; i < 3; i++ {
		testutil.AssertNoError(t, l.Wait(context.Background()))
	}
	testutil.AssertEqual(t, l.Tokens(), 0.0)
}

func TestWaitPaces(t *testing.T) {
	l, err := NewSafe(Every(20*time.Millisecond), 1)
	testutil.AssertNoError(t, err)

	start := time.Now()
	for i := 0; i < 4; i++ {
		testutil.AssertNoError(t, l.Wait(context.Background()))
	}

	// One token from the burst plus three refills.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("four waits took %v, want at least 60ms", elapsed)
	}
}

func TestWaitCancelledReturnsToken(t *testing.T) {
	l, _ := newMocked(t, 1, 1)
	testutil.AssertEqual(t, l.Allow(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	testutil.AssertErrorIs(t, err, context.DeadlineExceeded)
	testutil.AssertEqual(t, l.Tokens(), 0.0)
}

func TestWaitZeroRateExhausts(t *testing.T) {
	l, _ := newMocked(t, 0, 1)
	testutil.AssertNoError(t, l.Wait(context.Background()))
	err := l.Wait(context.Background())
	testutil.AssertEqual(t, errors.Is(err, ErrExhausted), true)
}

func TestWaitAlreadyCancelled(t *testing.T) {
	l, _ := newMocked(t, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testutil.AssertErrorIs(t, l.Wait(ctx), context.Canceled)
	testutil.AssertEqual(t, l.Tokens(), 1.0)
}

func TestConcurrentAllow(t *testing.T) {
	l, _ := newMocked(t, 0, 50)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Allow() {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	testutil.AssertEqual(t, granted, 50)
}
