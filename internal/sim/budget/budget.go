// Package budget converts a per-frame time budget into a count of new work items
// that may start, using a running estimate of item cost.
package budget

import (
	"math"
	"time"
)

// DefaultEstimate seeds the cost estimate before any item has completed.
const DefaultEstimate = 200 * time.Microsecond

// emaWeight is the weight of the newest sample.
const emaWeight = 0.5

type FrameBudget struct {
	budgetUs float64
	threads  int
	now      func() time.Time

	estimateUs float64
	pendingUs  float64
	start      time.Time
	elapsed    time.Duration
	completed  int
}

type Option func(*FrameBudget)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *FrameBudget) { b.now = now }
}

// WithEstimate overrides the seeded estimate. Zero means unknown.
func WithEstimate(d time.Duration) Option {
	return func(b *FrameBudget) {
		b.estimateUs = float64(d) / float64(time.Microsecond)
		b.pendingUs = b.estimateUs
	}
}

func New(budgetUs int, threads int, opts ...Option) *FrameBudget {
	if threads < 1 {
		threads = 1
	}
	seed := float64(DefaultEstimate) / float64(time.Microsecond)
	b := &FrameBudget{
		budgetUs:   float64(budgetUs),
		threads:    threads,
		now:        time.Now,
		estimateUs: seed,
		pendingUs:  seed,
	}
	for _, o := range opts {
		o(b)
	}
	b.start = b.now()
	return b
}

// ResetTimer starts a new frame.
func (b *FrameBudget) ResetTimer() {
	b.start = b.now()
	b.elapsed = 0
	b.completed = 0
}

// CompleteItem folds one observed duration into the pending estimate.
func (b *FrameBudget) CompleteItem(d time.Duration) {
	us := float64(d) / float64(time.Microsecond)
	if b.pendingUs <= 0 {
		b.pendingUs = us
	} else {
		b.pendingUs = emaWeight*us + (1-emaWeight)*b.pendingUs
	}
	b.completed++
	b.elapsed = b.now().Sub(b.start)
}

// UpdateEstimate publishes the estimate folded so far this frame.
func (b *FrameBudget) UpdateEstimate() {
	b.estimateUs = b.pendingUs
	b.elapsed = b.now().Sub(b.start)
}

// RequestWork returns how many new items may start given time already spent
// outside the budget's own bookkeeping.
func (b *FrameBudget) RequestWork(alreadySpent time.Duration) int {
	if b.estimateUs <= 0 || math.IsNaN(b.estimateUs) {
		return 0
	}
	elapsedUs := float64(b.elapsed) / float64(time.Microsecond)
	spentUs := float64(alreadySpent) / float64(time.Microsecond)
	remaining := b.budgetUs - elapsedUs - spentUs
	if remaining <= 0 {
		return 0
	}
	n := math.Floor(float64(b.threads) * remaining / b.estimateUs)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}

func (b *FrameBudget) Estimate() time.Duration {
	return time.Duration(b.estimateUs * float64(time.Microsecond))
}

func (b *FrameBudget) Elapsed() time.Duration { return b.elapsed }

// Completed is the number of items folded in since the last ResetTimer.
func (b *FrameBudget) Completed() int { return b.completed }
