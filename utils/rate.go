package utils

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultRateSmoothing is the weight given to the newest interval by a RateMeter.
const DefaultRateSmoothing = 0.1

// RateMeter estimates an event rate, such as frames per second, from an exponential moving
// average of the intervals between events.
type RateMeter struct {
	mu       sync.Mutex
	clk      clock.Clock
	alpha    float64
	last     time.Time
	interval float64 // seconds
	count    uint64
}

// NewRateMeter returns a RateMeter reading time from clk. alpha must be in (0, 1]; anything else
// falls back to DefaultRateSmoothing.
func NewRateMeter(clk clock.Clock, alpha float64) *RateMeter {
	if clk == nil {
		clk = clock.New()
	}
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultRateSmoothing
	}
	return &RateMeter{clk: clk, alpha: alpha}
}

// Tick records an event and returns the updated rate.
func (rm *RateMeter) Tick() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	now := rm.clk.Now()
	rm.count++
	if !rm.last.IsZero() {
		dt := now.Sub(rm.last).Seconds()
		if rm.interval == 0 {
			rm.interval = dt
		} else {
			rm.interval += rm.alpha * (dt - rm.interval)
		}
	}
	rm.last = now
	return rm.rateLocked()
}

// Rate returns the current estimate, 0 until two events have been seen.
func (rm *RateMeter) Rate() float64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.rateLocked()
}

// Count is the number of events recorded.
func (rm *RateMeter) Count() uint64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.count
}

func (rm *RateMeter) rateLocked() float64 {
	if rm.interval <= 0 {
		return 0
	}
	return 1 / rm.interval
}
