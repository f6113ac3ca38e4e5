package indicator

import (
	"math"
	"testing"

	"extgap/internal/market"
)

// flat makes a candle whose true range against the previous close is rng.
func flat(close, rng float64) market.Candle {
	return market.Candle{Open: close, High: close + rng/2, Low: close - rng/2, Close: close}
}

func TestATRFirstBarHasNoValue(t *testing.T) {
	a := NewATR(14)
	if _, ok := a.Update(flat(100, 10)); ok {
		t.Fatal("first bar should not produce an ATR")
	}
	if _, ok := a.Value(); ok {
		t.Fatal("Value should be unset before any true range exists")
	}
}

func TestATRWarmupSettlesAtConstantRange(t *testing.T) {
	// 14 bars of TR=100 must settle the ATR at exactly 100.
	a := NewATR(14)
	c := market.Candle{Open: 50000, High: 50050, Low: 49950, Close: 50000}
	a.Update(c)
	var got float64
	for i := 0; i < 14; i++ {
		got, _ = a.Update(c)
	}
	if got != 100 {
		t.Fatalf("settled ATR = %v, want 100", got)
	}
	if !a.Ready() {
		t.Fatal("ATR should be ready after a full period")
	}
}

func TestATRPartialAverageBeforeFullWindow(t *testing.T) {
	a := NewATR(14)
	a.Update(flat(100, 0))
	v, ok := a.Update(flat(100, 8))
	if !ok || v != 8 {
		t.Fatalf("partial ATR after one sample = %v (%v), want 8", v, ok)
	}
	if a.Ready() {
		t.Fatal("should not be ready with one sample")
	}
	v, _ = a.Update(flat(100, 4))
	if v != 6 {
		t.Fatalf("partial ATR after two samples = %v, want 6", v)
	}
}

func TestATRRingEvictsOldest(t *testing.T) {
	a := NewATR(3)
	a.Update(flat(100, 0))
	a.Update(flat(100, 3))
	a.Update(flat(100, 6))
	a.Update(flat(100, 9)) // window: 3,6,9
	got, _ := a.Value()
	if got != 6 {
		t.Fatalf("ATR over full ring = %v, want 6", got)
	}
	a.Update(flat(100, 12)) // evicts 3 -> window: 6,9,12
	got, _ = a.Value()
	if got != 9 {
		t.Fatalf("ATR after eviction = %v, want 9", got)
	}
}

func TestATRTrueRangeUsesPreviousClose(t *testing.T) {
	a := NewATR(14)
	a.Update(market.Candle{High: 101, Low: 99, Close: 100})
	// Gap up: high-low=2 but |low-prevClose|=5, TR must be 7 (high-prevClose).
	v, ok := a.Update(market.Candle{High: 107, Low: 105, Close: 106})
	if !ok {
		t.Fatal("expected a value on second bar")
	}
	if math.Abs(v-7) > 1e-12 {
		t.Fatalf("TR with gap up = %v, want 7", v)
	}
}

func TestATRReset(t *testing.T) {
	a := NewATR(5)
	a.Update(flat(100, 0))
	a.Update(flat(100, 10))
	a.Reset()
	if _, ok := a.Value(); ok || a.Samples() != 0 {
		t.Fatal("reset should clear samples and value")
	}
}
