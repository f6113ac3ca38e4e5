package report

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/markcheno/go-talib"

	"extgap/internal/market"
	"extgap/internal/replay"
)

// MarketContext 回放窗口末端的指标环境，给报表一个市场背景。
type MarketContext struct {
	LastClose float64
	EMA20     float64
	EMA50     float64
	RSI14     float64
	ATR14     float64
}

// BuildContext computes indicator context over the candle window. Returns
// the zero value when the window is too short for the slowest indicator.
func BuildContext(window []market.Candle) MarketContext {
	if len(window) < 51 {
		return MarketContext{}
	}
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	closes := make([]float64, len(window))
	for i, c := range window {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	ema20 := talib.Ema(closes, 20)
	ema50 := talib.Ema(closes, 50)
	rsi := talib.Rsi(closes, 14)
	atr := talib.Atr(highs, lows, closes, 14)
	last := len(closes) - 1
	return MarketContext{
		LastClose: closes[last],
		EMA20:     ema20[last],
		EMA50:     ema50[last],
		RSI14:     rsi[last],
		ATR14:     atr[last],
	}
}

// Summary renders the replay result as a terminal table.
func Summary(res *replay.Result) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("%s %s 回放结果", res.Symbol, res.Interval))
	t.AppendHeader(table.Row{"指标", "值"})
	t.AppendRows([]table.Row{
		{"K 线数", res.Candles},
		{"Gap 信号", len(res.Events)},
		{"看涨 / 看跌", fmt.Sprintf("%d / %d", res.GapStats.BullishGaps, res.GapStats.BearishGaps)},
		{"反转次数", res.GapStats.Reversals},
		{"平均信号间隔", fmt.Sprintf("%.1f 分钟", res.GapStats.AvgFrequencyMin)},
	})
	t.AppendSeparator()
	l := res.Ledger
	t.AppendRows([]table.Row{
		{"交易笔数", l.TotalTrades},
		{"胜 / 负 / 平", fmt.Sprintf("%d / %d / %d", l.WinningTrades, l.LosingTrades, l.BreakevenTrades)},
		{"胜率", fmt.Sprintf("%.1f%%", l.WinRate)},
		{"累计盈亏", fmt.Sprintf("%.4f USDT", l.CumulativePnL)},
		{"累计手续费", fmt.Sprintf("%.4f USDT", l.CumulativeFees)},
		{"盈亏因子", formatProfitFactor(l.ProfitFactor)},
		{"平均盈利 / 亏损", fmt.Sprintf("%.4f / %.4f", l.AvgWin, l.AvgLoss)},
		{"成交次数", l.TotalFills},
	})
	if ctx := BuildContext(res.Window); ctx.LastClose != 0 {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"收盘价", fmt.Sprintf("%.4f", ctx.LastClose)},
			{"EMA20 / EMA50", fmt.Sprintf("%.4f / %.4f", ctx.EMA20, ctx.EMA50)},
			{"RSI14", fmt.Sprintf("%.1f", ctx.RSI14)},
			{"ATR14", fmt.Sprintf("%.4f", ctx.ATR14)},
		})
	}
	return t.Render()
}

func formatProfitFactor(pf float64) string {
	if pf > 1e12 {
		return "∞"
	}
	return fmt.Sprintf("%.2f", pf)
}
