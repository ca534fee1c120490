package metrics

import (
	"math"
	"sync"
	"time"
)

// welford accumulates count, mean and M2 for a stream of durations using
// Welford's online algorithm: numerically stable, O(1) memory
// regardless of sample count.
type welford struct {
	mu    sync.Mutex
	count int64
	mean  float64
	m2    float64
}

func (w *welford) add(d time.Duration) {
	x := float64(d.Microseconds()) / 1000.0 // store as milliseconds
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2
}

// snapshot returns (count, mean, sample standard deviation). Sample
// variance (m2/(n-1)) is undefined for n<2 and reported as 0.
func (w *welford) snapshot() (count int64, mean float64, stddev float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count < 2 {
		return w.count, w.mean, 0
	}
	variance := w.m2 / float64(w.count-1)
	return w.count, w.mean, math.Sqrt(variance)
}
