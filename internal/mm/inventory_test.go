package mm

import (
	"math"
	"testing"
	"time"
)

var entryTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func buyFill(price, qty, fee float64, at time.Time) Fill {
	return Fill{
		OrderID:     "o1",
		Symbol:      "BTCUSDT",
		Side:        FillBuy,
		FillPrice:   price,
		Quantity:    qty,
		NotionalUSD: price * qty,
		FillTime:    at,
		CandleTime:  at,
		Fee:         fee,
		IsEntry:     true,
	}
}

func TestVWAPAcrossTwoFills(t *testing.T) {
	// 0.01 @ 50000 + 0.01 @ 49500 -> VWAP 49750, qty 0.02.
	tr := NewInventoryTracker("BTCUSDT")
	tr.AddFill(buyFill(50000, 0.01, 0.001, entryTime))
	tr.AddFill(buyFill(49500, 0.01, 0.001, entryTime.Add(5*time.Minute)))

	inv := tr.Current()
	if inv == nil {
		t.Fatal("no inventory")
	}
	if math.Abs(inv.AverageEntry-49750) > 1e-9 {
		t.Fatalf("VWAP = %v, want 49750", inv.AverageEntry)
	}
	if math.Abs(inv.TotalQuantity-0.02) > 1e-12 {
		t.Fatalf("qty = %v, want 0.02", inv.TotalQuantity)
	}
	if inv.NumFills() != 2 {
		t.Fatalf("fills = %d, want 2", inv.NumFills())
	}
	if !inv.FirstEntryTime.Equal(entryTime) {
		t.Fatalf("first entry = %s", inv.FirstEntryTime)
	}
}

func TestVWAPStaysWithinFillPriceRange(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	prices := []float64{50000, 49500, 49900, 49100, 49800}
	lo, hi := prices[0], prices[0]
	for i, p := range prices {
		tr.AddFill(buyFill(p, 0.01*float64(i+1), 0.001, entryTime))
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
		avg := tr.Current().AverageEntry
		if avg < lo || avg > hi {
			t.Fatalf("VWAP %v escaped [%v, %v] after %d fills", avg, lo, hi, i+1)
		}
	}
}

func TestOppositeFillIsDiscarded(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	tr.AddFill(buyFill(50000, 0.01, 0.001, entryTime))

	sell := buyFill(50100, 0.01, 0.001, entryTime)
	sell.Side = FillSell
	if tr.AddFill(sell) {
		t.Fatal("opposite fill accepted")
	}
	inv := tr.Current()
	if inv.Side != Long || inv.TotalQuantity != 0.01 || inv.NumFills() != 1 {
		t.Fatalf("position mutated by discarded fill: %+v", inv)
	}
	if tr.Violations() != 1 {
		t.Fatalf("violations = %d, want 1", tr.Violations())
	}
}

func TestClosePositionRealizedPnl(t *testing.T) {
	// LONG 0.02 @ 50000, entry fees 0.002, exit 50500 with taker fee
	// 0.0002*10100 = 2.02: gross 10.0, realized 7.978, WIN.
	tr := NewInventoryTracker("BTCUSDT")
	tr.AddFill(buyFill(50000, 0.02, 0.002, entryTime))

	exitFee := 0.0002 * 0.02 * 50500
	result := tr.ClosePosition(50500, entryTime.Add(time.Hour), exitFee, CloseSignalReversal)
	if result == nil {
		t.Fatal("no result")
	}
	if math.Abs(result.GrossPnL-10.0) > 1e-9 {
		t.Fatalf("gross = %v, want 10", result.GrossPnL)
	}
	if math.Abs(result.RealizedPnL-7.978) > 1e-9 {
		t.Fatalf("realized = %v, want 7.978", result.RealizedPnL)
	}
	if result.Status != Win {
		t.Fatalf("status = %s, want WIN", result.Status)
	}
	if result.CloseReason != CloseSignalReversal {
		t.Fatalf("reason = %s", result.CloseReason)
	}
	if tr.HasPosition() {
		t.Fatal("position not cleared on close")
	}
}

func TestClosePositionShortSide(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	sell := buyFill(50000, 0.02, 0.002, entryTime)
	sell.Side = FillSell
	tr.AddFill(sell)
	if side, _ := tr.PositionSide(); side != Short {
		t.Fatalf("side = %s, want SHORT", side)
	}

	result := tr.ClosePosition(49500, entryTime.Add(time.Hour), 0.5, CloseExpiry)
	if math.Abs(result.GrossPnL-10.0) > 1e-9 {
		t.Fatalf("short gross = %v, want 10", result.GrossPnL)
	}
	if result.Status != Win {
		t.Fatalf("status = %s", result.Status)
	}
}

func TestClosePositionBreakevenAtExactZero(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	tr.AddFill(buyFill(50000, 0.01, 0, entryTime))
	result := tr.ClosePosition(50000, entryTime.Add(time.Hour), 0, CloseManualReason)
	if result.Status != Breakeven || result.RealizedPnL != 0 {
		t.Fatalf("result = %s pnl=%v, want BREAKEVEN 0", result.Status, result.RealizedPnL)
	}
}

func TestCloseWithoutPosition(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	if result := tr.ClosePosition(50000, entryTime, 0, CloseManualReason); result != nil {
		t.Fatalf("closed a phantom position: %+v", result)
	}
}

func TestUnrealizedPnlAndValue(t *testing.T) {
	tr := NewInventoryTracker("BTCUSDT")
	tr.AddFill(buyFill(50000, 0.02, 0.002, entryTime))

	upnl, ok := tr.UnrealizedPnL(50500)
	if !ok || math.Abs(upnl-10) > 1e-9 {
		t.Fatalf("unrealized = %v (%v), want 10", upnl, ok)
	}
	val, ok := tr.PositionValue(50500)
	if !ok || math.Abs(val-1010) > 1e-9 {
		t.Fatalf("value = %v (%v), want 1010", val, ok)
	}
}
