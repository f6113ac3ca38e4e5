package mm

import (
	"github.com/google/uuid"

	"extgap/internal/logger"
	"extgap/internal/market"
)

// FillSimulator decides which resting orders a candle would have executed.
// It is a pure function of (candle, order): a BID fills iff the candle's
// low reached the limit price, an ASK iff the high did, and the fill price
// is always the limit price (maker fill, no slippage).
type FillSimulator struct {
	makerFeeRate float64
	totalFills   int
}

func NewFillSimulator(makerFeeRate float64) *FillSimulator {
	return &FillSimulator{makerFeeRate: makerFeeRate}
}

// CheckFills evaluates every pending order independently against the
// candle; several orders may fill on the same bar. Fill timestamps come
// from the candle so replays are byte-for-byte reproducible.
func (f *FillSimulator) CheckFills(c market.Candle, pending []*GridOrder) []Fill {
	var fills []Fill
	for _, o := range pending {
		if o.Status != StatusPending {
			continue
		}

		matched := false
		switch o.Side {
		case SideBid:
			matched = c.Low <= o.Price
		case SideAsk:
			matched = c.High >= o.Price
		}
		if !matched {
			continue
		}

		side := FillBuy
		if o.Side == SideAsk {
			side = FillSell
		}
		fill := Fill{
			OrderID:     o.ID,
			Symbol:      o.Symbol,
			Side:        side,
			FillPrice:   o.Price,
			Quantity:    o.Quantity,
			NotionalUSD: o.NotionalUSD,
			FillTime:    c.CloseTime(),
			CandleTime:  c.CloseTime(),
			CandleHigh:  c.High,
			CandleLow:   c.Low,
			Fee:         o.NotionalUSD * f.makerFeeRate,
			IsEntry:     true,
		}
		fills = append(fills, fill)
		f.totalFills++
		logger.Infof("%s: fill %s level=%d @ %.2f qty=%.6f fee=%.4f",
			o.Symbol, fill.Side, o.Level, fill.FillPrice, fill.Quantity, fill.Fee)
	}
	return fills
}

// SimulateMarketExit produces a single unconditional taker fill at the
// supplied price, used for reversal/expiry/manual closes. It is never
// matched against book conditions.
func (f *FillSimulator) SimulateMarketExit(symbol string, side FillSide, quantity, exitPrice, takerFeeRate float64, c market.Candle) Fill {
	notional := quantity * exitPrice
	return Fill{
		OrderID:     "exit-" + uuid.New().String(),
		Symbol:      symbol,
		Side:        side,
		FillPrice:   exitPrice,
		Quantity:    quantity,
		NotionalUSD: notional,
		FillTime:    c.CloseTime(),
		CandleTime:  c.CloseTime(),
		CandleHigh:  c.High,
		CandleLow:   c.Low,
		Fee:         notional * takerFeeRate,
		IsEntry:     false,
	}
}

func (f *FillSimulator) TotalFills() int { return f.totalFills }
