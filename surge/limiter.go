package surge

import (
	"fmt"
	"sync"
	"time"

	"github.com/not-mt/zapd/errors"
)

// Limiter enforces max zap submissions per time window using a sliding
// window algorithm. A max of zero or below disables the limit.
type Limiter struct {
	maxZapsPerMinute int
	window           time.Duration
	mu               sync.Mutex
	zapTimes         []time.Time
	timeNow          func() time.Time // Injectable for testing
}

// NewLimiter creates a zap rate limiter with real time
func NewLimiter(maxZapsPerMinute int) *Limiter {
	return NewLimiterWithClock(maxZapsPerMinute, time.Now)
}

// NewLimiterWithClock creates a zap rate limiter with injectable clock (for testing)
func NewLimiterWithClock(maxZapsPerMinute int, timeNow func() time.Time) *Limiter {
	capacity := maxZapsPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxZapsPerMinute: maxZapsPerMinute,
		window:           60 * time.Second, // 1 minute window
		zapTimes:         make([]time.Time, 0, capacity),
		timeNow:          timeNow,
	}
}

// Allow checks if one more zap fits the dispatch budget.
// Returns an error marked ErrOverBudget if the budget is exhausted.
func (r *Limiter) Allow() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxZapsPerMinute <= 0 {
		return nil // Unlimited
	}

	now := r.timeNow()

	// Remove expired zap timestamps (outside the window)
	r.removeExpiredZaps(now)

	// Check if we're at the limit
	if len(r.zapTimes) >= r.maxZapsPerMinute {
		err := errors.Newf("zap budget exceeded: %d zaps per minute (limit: %d)",
			len(r.zapTimes), r.maxZapsPerMinute)
		err = errors.WithDetail(err, fmt.Sprintf("Zaps in window: %d", len(r.zapTimes)))
		err = errors.WithDetail(err, fmt.Sprintf("Max zaps per minute: %d", r.maxZapsPerMinute))
		err = errors.WithHint(err, "Wait for the window to roll over or raise surge.max_zaps_per_minute")
		return errors.Mark(err, errors.ErrOverBudget)
	}

	// Record this zap
	r.zapTimes = append(r.zapTimes, now)

	return nil
}

// Stats returns zaps in the current window and remaining capacity.
// An unlimited limiter reports zero in-window and -1 remaining.
func (r *Limiter) Stats() (zapsInWindow int, zapsRemaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxZapsPerMinute <= 0 {
		return 0, -1
	}

	r.removeExpiredZaps(r.timeNow())

	zapsInWindow = len(r.zapTimes)
	zapsRemaining = r.maxZapsPerMinute - zapsInWindow
	if zapsRemaining < 0 {
		zapsRemaining = 0
	}
	return zapsInWindow, zapsRemaining
}

// removeExpiredZaps removes zap timestamps that are outside the sliding window
// Must be called with lock held
func (r *Limiter) removeExpiredZaps(now time.Time) {
	cutoff := now.Add(-r.window)

	// Count expired zaps from front (timestamps are ordered)
	expired := 0
	for _, zapTime := range r.zapTimes {
		if !zapTime.After(cutoff) {
			expired++
		} else {
			break
		}
	}

	r.zapTimes = r.zapTimes[expired:]
}

// SetCapacity changes the budget at runtime. Zaps already in the window
// keep counting against the new capacity. The config watcher uses this
// when surge.max_zaps_per_minute changes.
func (r *Limiter) SetCapacity(maxZapsPerMinute int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxZapsPerMinute = maxZapsPerMinute
}

// Reset clears the rate limiter state
func (r *Limiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.zapTimes = r.zapTimes[:0]
}
