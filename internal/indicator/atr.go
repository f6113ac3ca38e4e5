// Package indicator holds the online volatility math used for grid spacing.
package indicator

import (
	"math"

	"extgap/internal/market"
)

// ATRState is a snapshot of the estimator, exposed for status reporting.
type ATRState struct {
	Period    int     `json:"period"`
	Value     float64 `json:"value"`
	HasValue  bool    `json:"has_value"`
	Samples   int     `json:"samples"`
	PrevClose float64 `json:"prev_close"`
}

// ATR computes the Average True Range over the last period true-range
// samples. The average is taken over whatever samples are currently held,
// so a usable value exists before the window fills (fast warm-up); callers
// that need a settled value should check Ready.
type ATR struct {
	period    int
	ring      []float64
	head      int
	size      int
	sum       float64
	prevClose float64
	hasPrev   bool
	value     float64
	hasValue  bool
}

func NewATR(period int) *ATR {
	if period <= 0 {
		period = 14
	}
	return &ATR{period: period, ring: make([]float64, period)}
}

// Update feeds one closed candle. The boolean is false only before any
// prior close is known (the very first bar).
func (a *ATR) Update(c market.Candle) (float64, bool) {
	if !a.hasPrev {
		a.prevClose = c.Close
		a.hasPrev = true
		return 0, false
	}

	tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-a.prevClose), math.Abs(c.Low-a.prevClose)))
	a.push(tr)
	a.prevClose = c.Close

	a.value = a.sum / float64(a.size)
	a.hasValue = true
	return a.value, true
}

// push appends to the ring, evicting the oldest sample when full.
func (a *ATR) push(tr float64) {
	if a.size == a.period {
		a.sum -= a.ring[a.head]
	} else {
		a.size++
	}
	a.ring[a.head] = tr
	a.sum += tr
	a.head = (a.head + 1) % a.period
}

// Value returns the current ATR, false while no true range has been seen.
func (a *ATR) Value() (float64, bool) { return a.value, a.hasValue }

// Ready reports whether a full period of samples backs the average.
func (a *ATR) Ready() bool { return a.size == a.period }

func (a *ATR) Samples() int { return a.size }

func (a *ATR) State() ATRState {
	return ATRState{
		Period:    a.period,
		Value:     a.value,
		HasValue:  a.hasValue,
		Samples:   a.size,
		PrevClose: a.prevClose,
	}
}

// Reset drops all state, as if freshly constructed.
func (a *ATR) Reset() {
	a.head, a.size = 0, 0
	a.sum = 0
	a.prevClose, a.hasPrev = 0, false
	a.value, a.hasValue = 0, false
}
