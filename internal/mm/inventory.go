package mm

import (
	"time"

	"extgap/internal/logger"
)

// InventoryTracker aggregates same-direction fills into one VWAP position
// per symbol. The grid is always fully cancelled before a new bias is
// placed, so an opposite-direction fill can only mean a broken invariant:
// it is logged, counted and discarded rather than corrupting the position.
type InventoryTracker struct {
	symbol       string
	current      *Inventory
	closedTrades []TradeResult
	violations   int
}

func NewInventoryTracker(symbol string) *InventoryTracker {
	return &InventoryTracker{symbol: symbol}
}

// AddFill folds a fill into the position, creating it when absent. Returns
// false when the fill was discarded as an opposite-direction violation.
func (t *InventoryTracker) AddFill(fill Fill) bool {
	if t.current == nil {
		side := Long
		if fill.Side == FillSell {
			side = Short
		}
		t.current = &Inventory{
			Symbol:           t.symbol,
			Side:             side,
			TotalQuantity:    fill.Quantity,
			AverageEntry:     fill.FillPrice,
			TotalNotionalUSD: fill.NotionalUSD,
			TotalEntryFees:   fill.Fee,
			Fills:            []Fill{fill},
			FirstEntryTime:   fill.FillTime,
			LastEntryTime:    fill.FillTime,
		}
		logger.Infof("%s: new %s inventory qty=%.6f @ %.2f", t.symbol, side, fill.Quantity, fill.FillPrice)
		return true
	}

	inv := t.current
	sameDirection := (inv.Side == Long && fill.Side == FillBuy) ||
		(inv.Side == Short && fill.Side == FillSell)
	if !sameDirection {
		t.violations++
		logger.Errorf("%s: invariant violation, %s fill while %s, discarding", t.symbol, fill.Side, inv.Side)
		return false
	}

	// VWAP over all entries.
	newQty := inv.TotalQuantity + fill.Quantity
	inv.AverageEntry = (inv.AverageEntry*inv.TotalQuantity + fill.FillPrice*fill.Quantity) / newQty
	inv.TotalQuantity = newQty
	inv.TotalNotionalUSD += fill.NotionalUSD
	inv.TotalEntryFees += fill.Fee
	inv.Fills = append(inv.Fills, fill)
	inv.LastEntryTime = fill.FillTime

	logger.Infof("%s: added to %s, qty=%.6f avg=%.2f fills=%d",
		t.symbol, inv.Side, inv.TotalQuantity, inv.AverageEntry, len(inv.Fills))
	return true
}

// ClosePosition realizes the position at exitPrice and clears it. Returns
// nil when no position is open. Realized P&L is gross minus entry fees and
// the exit fee; a result of exactly zero classifies as BREAKEVEN.
func (t *InventoryTracker) ClosePosition(exitPrice float64, exitTime time.Time, exitFee float64, reason CloseReason) *TradeResult {
	if t.current == nil {
		return nil
	}
	inv := t.current

	grossPnl := (exitPrice - inv.AverageEntry) * inv.TotalQuantity
	if inv.Side == Short {
		grossPnl = (inv.AverageEntry - exitPrice) * inv.TotalQuantity
	}
	totalFees := inv.TotalEntryFees + exitFee
	realized := grossPnl - totalFees

	status := Breakeven
	switch {
	case realized > 0:
		status = Win
	case realized < 0:
		status = Loss
	}

	result := TradeResult{
		Status:      status,
		OpenTime:    inv.FirstEntryTime,
		CloseTime:   exitTime,
		Symbol:      t.symbol,
		Side:        inv.Side,
		EntryPrice:  inv.AverageEntry,
		ExitPrice:   exitPrice,
		SizeUSD:     inv.TotalNotionalUSD,
		SizeQty:     inv.TotalQuantity,
		NumFills:    len(inv.Fills),
		GrossPnL:    grossPnl,
		RealizedPnL: realized,
		TotalFees:   totalFees,
		CloseReason: reason,
	}
	t.closedTrades = append(t.closedTrades, result)

	logger.Infof("%s: closed %s entry=%.2f exit=%.2f qty=%.6f gross=%.2f fees=%.4f realized=%.2f (%s, %s)",
		t.symbol, inv.Side, inv.AverageEntry, exitPrice, inv.TotalQuantity,
		grossPnl, totalFees, realized, status, reason)

	t.current = nil
	return &result
}

func (t *InventoryTracker) HasPosition() bool { return t.current != nil }

// Current returns the live inventory, nil when flat.
func (t *InventoryTracker) Current() *Inventory { return t.current }

func (t *InventoryTracker) PositionSide() (PositionSide, bool) {
	if t.current == nil {
		return "", false
	}
	return t.current.Side, true
}

// PositionValue values the open quantity at the given price.
func (t *InventoryTracker) PositionValue(currentPrice float64) (float64, bool) {
	if t.current == nil {
		return 0, false
	}
	return t.current.TotalQuantity * currentPrice, true
}

// UnrealizedPnL marks the open position against the given price.
func (t *InventoryTracker) UnrealizedPnL(currentPrice float64) (float64, bool) {
	if t.current == nil {
		return 0, false
	}
	inv := t.current
	if inv.Side == Long {
		return (currentPrice - inv.AverageEntry) * inv.TotalQuantity, true
	}
	return (inv.AverageEntry - currentPrice) * inv.TotalQuantity, true
}

func (t *InventoryTracker) ClosedTrades() []TradeResult {
	out := make([]TradeResult, len(t.closedTrades))
	copy(out, t.closedTrades)
	return out
}

// Violations counts discarded opposite-direction fills; anything nonzero
// points at a grid-cancellation bug upstream.
func (t *InventoryTracker) Violations() int { return t.violations }
