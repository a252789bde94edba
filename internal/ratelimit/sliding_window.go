package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow divides a fixed window into equal slots and admits a request
// only if the sum of live slot counters stays within the limit. This smooths
// the burst a fixed window allows at its boundary.
type SlidingWindow struct {
	mu       sync.Mutex
	limit    int
	slotSize time.Duration
	counts   []int
	stamps   []int64 // absolute slot number last written to counts[i]

	now func() time.Time
}

// NewSlidingWindow creates a limiter over a window of `window` duration split
// into slotCount slots. window must be divisible into at least one slot.
func NewSlidingWindow(limit int, window time.Duration, slotCount int) *SlidingWindow {
	if slotCount < 1 {
		slotCount = 1
	}
	return &SlidingWindow{
		limit:    limit,
		slotSize: window / time.Duration(slotCount),
		counts:   make([]int, slotCount),
		stamps:   make([]int64, slotCount),
		now:      time.Now,
	}
}

func (w *SlidingWindow) TryAcquire(permits int) bool {
	if permits <= 0 {
		return true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.currentSlot()
	total := w.expireAndSum(cur)
	if total+permits > w.limit {
		return false
	}

	idx := int(cur % int64(len(w.counts)))
	if w.stamps[idx] != cur {
		w.counts[idx] = 0
		w.stamps[idx] = cur
	}
	w.counts[idx] += permits
	return true
}

func (w *SlidingWindow) currentSlot() int64 {
	return w.now().UnixNano() / w.slotSize.Nanoseconds()
}

// expireAndSum zeroes slots that fell out of the window and returns the live
// total. Must be called with the mutex held.
func (w *SlidingWindow) expireAndSum(cur int64) int {
	oldest := cur - int64(len(w.counts)) + 1
	total := 0
	for i := range w.counts {
		if w.stamps[i] < oldest {
			w.counts[i] = 0
			continue
		}
		total += w.counts[i]
	}
	return total
}

func (w *SlidingWindow) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	total := w.expireAndSum(w.currentSlot())
	return Stats{
		Algorithm: "sliding_window",
		Limit:     int64(w.limit),
		Available: int64(w.limit - total),
	}
}
