package surge

import (
	"sync"
	"testing"
	"time"

	"github.com/not-mt/zapd/errors"
)

// mockClock allows controlling time in tests
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock(now time.Time) *mockClock {
	return &mockClock{now: now}
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Test Case 1: Under Limit
// Given: Limiter configured for 10 zaps/minute
// When: Submitting 5 zaps within 1 minute
// Then: All zaps should be allowed
func TestLimiter_UnderLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 5; i++ {
		if err := limiter.Allow(); err != nil {
			t.Errorf("Zap %d: expected no error, got %v", i+1, err)
		}
		clock.Advance(1 * time.Second)
	}
}

// Test Case 2: At Limit
// Given: Limiter configured for 10 zaps/minute
// When: Submitting exactly 10 zaps within 1 minute
// Then: All zaps should be allowed, 11th should be rejected
func TestLimiter_AtLimit(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(10, clock.Now)

	for i := 0; i < 10; i++ {
		if err := limiter.Allow(); err != nil {
			t.Errorf("Zap %d: expected no error, got %v", i+1, err)
		}
		clock.Advance(100 * time.Millisecond)
	}

	err := limiter.Allow()
	if err == nil {
		t.Fatal("Zap 11: expected budget error, got nil")
	}
	if !errors.IsOverBudgetError(err) {
		t.Errorf("Zap 11: expected over-budget sentinel, got %v", err)
	}
}

// Test Case 3: Window Rollover
// Given: Limiter at capacity
// When: The sliding window advances past the oldest zaps
// Then: Capacity frees up one zap at a time
func TestLimiter_WindowRollover(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(2, clock.Now)

	// Fill the window: one zap now, one 30s later
	if err := limiter.Allow(); err != nil {
		t.Fatalf("first zap rejected: %v", err)
	}
	clock.Advance(30 * time.Second)
	if err := limiter.Allow(); err != nil {
		t.Fatalf("second zap rejected: %v", err)
	}

	if err := limiter.Allow(); err == nil {
		t.Error("third zap allowed with a full window")
	}

	// 31 more seconds expires the first zap but not the second
	clock.Advance(31 * time.Second)
	if err := limiter.Allow(); err != nil {
		t.Errorf("zap rejected after the oldest slot expired: %v", err)
	}
	if err := limiter.Allow(); err == nil {
		t.Error("window readmitted two zaps when only one slot expired")
	}
}

// Test Case 4: Unlimited
// Given: Limiter configured with zero capacity
// When: Submitting many zaps
// Then: All are allowed and Stats reports unlimited
func TestLimiter_Unlimited(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(0, clock.Now)

	for i := 0; i < 100; i++ {
		if err := limiter.Allow(); err != nil {
			t.Fatalf("Zap %d rejected by an unlimited limiter: %v", i+1, err)
		}
	}

	inWindow, remaining := limiter.Stats()
	if inWindow != 0 {
		t.Errorf("unlimited Stats inWindow = %d, want 0", inWindow)
	}
	if remaining != -1 {
		t.Errorf("unlimited Stats remaining = %d, want -1", remaining)
	}
}

// Test Case 5: Stats
// Given: Limiter configured for 5 zaps/minute with 3 used
// When: Reading Stats
// Then: Counts reflect the sliding window
func TestLimiter_Stats(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(5, clock.Now)

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(); err != nil {
			t.Fatalf("zap %d rejected: %v", i+1, err)
		}
	}

	inWindow, remaining := limiter.Stats()
	if inWindow != 3 {
		t.Errorf("Stats inWindow = %d, want 3", inWindow)
	}
	if remaining != 2 {
		t.Errorf("Stats remaining = %d, want 2", remaining)
	}

	clock.Advance(61 * time.Second)
	inWindow, remaining = limiter.Stats()
	if inWindow != 0 {
		t.Errorf("Stats inWindow after rollover = %d, want 0", inWindow)
	}
	if remaining != 5 {
		t.Errorf("Stats remaining after rollover = %d, want 5", remaining)
	}
}

// Test Case 6: Reset
// Given: Limiter at capacity
// When: Reset is called
// Then: The full budget is available again
func TestLimiter_Reset(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)

	if err := limiter.Allow(); err != nil {
		t.Fatalf("first zap rejected: %v", err)
	}
	if err := limiter.Allow(); err == nil {
		t.Fatal("second zap allowed at capacity")
	}

	limiter.Reset()

	if err := limiter.Allow(); err != nil {
		t.Errorf("zap rejected after reset: %v", err)
	}
}

// Test Case 7: Runtime capacity change
// Given: Limiter at capacity 1 with one zap in the window
// When: SetCapacity raises the budget to 3
// Then: Two more zaps fit, the fourth is rejected
func TestLimiter_SetCapacity(t *testing.T) {
	clock := newMockClock(time.Now())
	limiter := NewLimiterWithClock(1, clock.Now)

	if err := limiter.Allow(); err != nil {
		t.Fatalf("first zap rejected: %v", err)
	}
	if err := limiter.Allow(); err == nil {
		t.Fatal("second zap allowed at capacity 1")
	}

	limiter.SetCapacity(3)

	// The zap already in the window still counts against the raised budget
	for i := 0; i < 2; i++ {
		if err := limiter.Allow(); err != nil {
			t.Errorf("zap %d rejected after capacity raise: %v", i+2, err)
		}
	}
	if err := limiter.Allow(); err == nil {
		t.Error("zap allowed beyond raised capacity")
	}
}

func TestLimiter_NegativeCapacityClamped(t *testing.T) {
	limiter := NewLimiter(-5)

	if err := limiter.Allow(); err != nil {
		t.Errorf("negative capacity should clamp to unlimited, got %v", err)
	}
}
