package mm

import (
	"fmt"
	"math"

	"extgap/internal/logger"
)

// PnLLedger is the cumulative trade statistics accumulator. It stamps each
// recorded result with the running totals and never discards a trade.
type PnLLedger struct {
	makerFeeRate float64
	takerFeeRate float64

	totalTrades     int
	winningTrades   int
	losingTrades    int
	breakevenTrades int

	cumulativePnL    float64
	cumulativeFees   float64
	cumulativeVolume float64
	totalFills       int

	winningPnls []float64
	losingPnls  []float64
}

func NewPnLLedger(makerFeeRate, takerFeeRate float64) *PnLLedger {
	return &PnLLedger{makerFeeRate: makerFeeRate, takerFeeRate: takerFeeRate}
}

// EntryFee 按 maker 费率计算入场费用。
func (l *PnLLedger) EntryFee(notionalUSD float64) float64 {
	return notionalUSD * l.makerFeeRate
}

// ExitFee computes the close fee; market exits pay taker.
func (l *PnLLedger) ExitFee(notionalUSD float64, isMaker bool) float64 {
	if isMaker {
		return notionalUSD * l.makerFeeRate
	}
	return notionalUSD * l.takerFeeRate
}

// RecordFill tracks fill count and entry fees.
func (l *PnLLedger) RecordFill(fill Fill) {
	l.totalFills++
	l.cumulativeFees += fill.Fee
}

// RecordTrade folds one closed trade into the running totals and returns
// the result stamped with the cumulative counters.
func (l *PnLLedger) RecordTrade(result TradeResult) TradeResult {
	l.totalTrades++
	switch result.Status {
	case Win:
		l.winningTrades++
		l.winningPnls = append(l.winningPnls, result.RealizedPnL)
	case Loss:
		l.losingTrades++
		l.losingPnls = append(l.losingPnls, result.RealizedPnL)
	default:
		l.breakevenTrades++
	}

	l.cumulativePnL += result.RealizedPnL
	l.cumulativeFees += result.TotalFees
	l.cumulativeVolume += result.SizeUSD

	result.CumulativeWins = l.winningTrades
	result.CumulativeLosses = l.losingTrades
	result.CumulativePnL = l.cumulativePnL
	result.CumulativeFees = l.cumulativeFees

	logger.Infof("trade recorded: %s pnl=%.2f cumulative=%.2f win_rate=%.1f%%",
		result.Status, result.RealizedPnL, l.cumulativePnL, l.WinRate())
	return result
}

func (l *PnLLedger) WinRate() float64 {
	if l.totalTrades == 0 {
		return 0
	}
	return float64(l.winningTrades) / float64(l.totalTrades) * 100
}

func (l *PnLLedger) AvgWin() float64  { return mean(l.winningPnls) }
func (l *PnLLedger) AvgLoss() float64 { return mean(l.losingPnls) }

// ProfitFactor is gross wins over absolute gross losses: +Inf with wins and
// no losses, 0 with no wins.
func (l *PnLLedger) ProfitFactor() float64 {
	var wins, losses float64
	for _, p := range l.winningPnls {
		wins += p
	}
	for _, p := range l.losingPnls {
		losses += p
	}
	losses = math.Abs(losses)
	if losses == 0 {
		if wins > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return wins / losses
}

func (l *PnLLedger) AvgPnLPerTrade() float64 {
	if l.totalTrades == 0 {
		return 0
	}
	return l.cumulativePnL / float64(l.totalTrades)
}

// FeeRatio 费用占成交量比例。
func (l *PnLLedger) FeeRatio() float64 {
	if l.cumulativeVolume == 0 {
		return 0
	}
	return l.cumulativeFees / l.cumulativeVolume
}

// LedgerStats is the JSON-facing snapshot of the ledger.
type LedgerStats struct {
	TotalTrades      int     `json:"total_trades"`
	WinningTrades    int     `json:"winning_trades"`
	LosingTrades     int     `json:"losing_trades"`
	BreakevenTrades  int     `json:"breakeven_trades"`
	WinRate          float64 `json:"win_rate"`
	CumulativePnL    float64 `json:"cumulative_pnl"`
	CumulativeFees   float64 `json:"cumulative_fees"`
	CumulativeVolume float64 `json:"cumulative_volume"`
	TotalFills       int     `json:"total_fills"`
	AvgPnLPerTrade   float64 `json:"avg_pnl_per_trade"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	ProfitFactor     float64 `json:"profit_factor"`
	FeeRatio         float64 `json:"fee_ratio"`
}

func (l *PnLLedger) Stats() LedgerStats {
	pf := l.ProfitFactor()
	if math.IsInf(pf, 1) {
		// encoding/json 不支持 +Inf，快照用最大浮点值代替。
		pf = math.MaxFloat64
	}
	return LedgerStats{
		TotalTrades:      l.totalTrades,
		WinningTrades:    l.winningTrades,
		LosingTrades:     l.losingTrades,
		BreakevenTrades:  l.breakevenTrades,
		WinRate:          l.WinRate(),
		CumulativePnL:    l.cumulativePnL,
		CumulativeFees:   l.cumulativeFees,
		CumulativeVolume: l.cumulativeVolume,
		TotalFills:       l.totalFills,
		AvgPnLPerTrade:   l.AvgPnLPerTrade(),
		AvgWin:           l.AvgWin(),
		AvgLoss:          l.AvgLoss(),
		ProfitFactor:     pf,
		FeeRatio:         l.FeeRatio(),
	}
}

func (l *PnLLedger) FormatSummary() string {
	return fmt.Sprintf("Trades: %d (W:%d/L:%d) | Win Rate: %.1f%% | P&L: $%.2f | Fees: $%.4f | Avg P&L: $%.2f",
		l.totalTrades, l.winningTrades, l.losingTrades, l.WinRate(), l.cumulativePnL, l.cumulativeFees, l.AvgPnLPerTrade())
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
