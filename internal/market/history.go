package market

import "time"

const DefaultHistoryCapacity = 600

type Sample struct {
	Time  time.Time
	Value float64
}

// BasisHistory is a fixed-capacity ring of basis observations in arrival order.
// It is not safe for concurrent use; the owner serializes access.
type BasisHistory struct {
	samples []Sample
	start   int
	size    int
}

func NewBasisHistory(capacity int) *BasisHistory {
	if capacity < 2 {
		capacity = DefaultHistoryCapacity
	}
	return &BasisHistory{samples: make([]Sample, capacity)}
}

// Record appends a sample, evicting the oldest once full.
func (h *BasisHistory) Record(ts time.Time, value float64) {
	capacity := len(h.samples)
	if h.size < capacity {
		h.samples[(h.start+h.size)%capacity] = Sample{Time: ts, Value: value}
		h.size++
		return
	}
	h.samples[h.start] = Sample{Time: ts, Value: value}
	h.start = (h.start + 1) % capacity
}

func (h *BasisHistory) Len() int {
	return h.size
}

func (h *BasisHistory) Cap() int {
	return len(h.samples)
}

// Latest returns the newest sample.
func (h *BasisHistory) Latest() (Sample, bool) {
	if h.size == 0 {
		return Sample{}, false
	}
	return h.at(h.size - 1), true
}

// IsRising reports whether the newest sample inside [now-window, ...] is strictly
// above the oldest one. Fewer than two samples in the window is never rising.
func (h *BasisHistory) IsRising(now time.Time, window time.Duration) bool {
	cutoff := now.Add(-window)
	var (
		first, last Sample
		count       int
	)
	for i := 0; i < h.size; i++ {
		s := h.at(i)
		if s.Time.Before(cutoff) {
			continue
		}
		if count == 0 {
			first = s
		}
		last = s
		count++
	}
	if count < 2 {
		return false
	}
	return last.Value > first.Value
}

func (h *BasisHistory) at(i int) Sample {
	return h.samples[(h.start+i)%len(h.samples)]
}
