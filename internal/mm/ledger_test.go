package mm

import (
	"math"
	"testing"
)

func tradeResult(status TradeStatus, realized, fees, sizeUSD float64) TradeResult {
	return TradeResult{
		Status:      status,
		Symbol:      "BTCUSDT",
		RealizedPnL: realized,
		TotalFees:   fees,
		SizeUSD:     sizeUSD,
	}
}

func TestLedgerStampsCumulativeCounters(t *testing.T) {
	l := NewPnLLedger(0.00002, 0.0002)

	r1 := l.RecordTrade(tradeResult(Win, 10, 0.5, 1000))
	if r1.CumulativeWins != 1 || r1.CumulativeLosses != 0 || r1.CumulativePnL != 10 {
		t.Fatalf("first stamp = %+v", r1)
	}
	r2 := l.RecordTrade(tradeResult(Loss, -4, 0.3, 500))
	if r2.CumulativeWins != 1 || r2.CumulativeLosses != 1 {
		t.Fatalf("second stamp = %+v", r2)
	}
	if r2.CumulativePnL != 6 {
		t.Fatalf("cumulative pnl = %v, want 6", r2.CumulativePnL)
	}
	if math.Abs(r2.CumulativeFees-0.8) > 1e-12 {
		t.Fatalf("cumulative fees = %v, want 0.8", r2.CumulativeFees)
	}
}

func TestLedgerWinRateAndAverages(t *testing.T) {
	l := NewPnLLedger(0.00002, 0.0002)
	l.RecordTrade(tradeResult(Win, 10, 0, 100))
	l.RecordTrade(tradeResult(Win, 6, 0, 100))
	l.RecordTrade(tradeResult(Loss, -4, 0, 100))
	l.RecordTrade(tradeResult(Breakeven, 0, 0, 100))

	if got := l.WinRate(); got != 50 {
		t.Fatalf("win rate = %v, want 50", got)
	}
	if got := l.AvgWin(); got != 8 {
		t.Fatalf("avg win = %v, want 8", got)
	}
	if got := l.AvgLoss(); got != -4 {
		t.Fatalf("avg loss = %v, want -4", got)
	}
	if got := l.AvgPnLPerTrade(); got != 3 {
		t.Fatalf("avg pnl = %v, want 3", got)
	}
}

func TestProfitFactor(t *testing.T) {
	l := NewPnLLedger(0.00002, 0.0002)
	if got := l.ProfitFactor(); got != 0 {
		t.Fatalf("empty ledger profit factor = %v, want 0", got)
	}

	l.RecordTrade(tradeResult(Win, 10, 0, 100))
	if got := l.ProfitFactor(); !math.IsInf(got, 1) {
		t.Fatalf("no-loss profit factor = %v, want +Inf", got)
	}
	if got := l.Stats().ProfitFactor; math.IsInf(got, 1) {
		t.Fatalf("snapshot profit factor must be finite, got %v", got)
	}

	l.RecordTrade(tradeResult(Loss, -5, 0, 100))
	if got := l.ProfitFactor(); got != 2 {
		t.Fatalf("profit factor = %v, want 2", got)
	}
}

func TestLedgerFees(t *testing.T) {
	l := NewPnLLedger(0.00002, 0.0002)
	if got := l.EntryFee(100); got != 0.002 {
		t.Fatalf("entry fee = %v, want 0.002", got)
	}
	if got := l.ExitFee(100, false); got != 0.02 {
		t.Fatalf("taker exit fee = %v, want 0.02", got)
	}
	if got := l.ExitFee(100, true); got != 0.002 {
		t.Fatalf("maker exit fee = %v, want 0.002", got)
	}
}

func TestLedgerFeeRatioAndFillTracking(t *testing.T) {
	l := NewPnLLedger(0.00002, 0.0002)
	l.RecordFill(Fill{NotionalUSD: 100, Fee: 0.002})
	l.RecordFill(Fill{NotionalUSD: 100, Fee: 0.002})
	l.RecordTrade(tradeResult(Win, 5, 1, 1000))

	s := l.Stats()
	if s.TotalFills != 2 {
		t.Fatalf("fills = %d, want 2", s.TotalFills)
	}
	if math.Abs(s.CumulativeFees-1.004) > 1e-12 {
		t.Fatalf("fees = %v, want 1.004", s.CumulativeFees)
	}
	if math.Abs(s.FeeRatio-1.004/1000) > 1e-12 {
		t.Fatalf("fee ratio = %v", s.FeeRatio)
	}
}
