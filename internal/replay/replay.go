package replay

import (
	"context"
	"fmt"
	"time"

	"extgap/internal/gap"
	"extgap/internal/logger"
	"extgap/internal/market"
	"extgap/internal/mm"
)

// Options 一次回放的全部参数。
type Options struct {
	Symbol           string
	TimeframeMinutes int
	Grid             mm.GridConfig
	EntryTiming      gap.EntryTiming
	// Sinks 附加的事件落地（SQLite/CSV），可为空。
	Sinks []mm.Sink
	// CloseAtEnd 回放结束时以 MANUAL 平掉残留仓位。
	CloseAtEnd bool
}

// EquityPoint 每笔平仓后的累计盈亏。
type EquityPoint struct {
	Time          time.Time `json:"time"`
	CumulativePnL float64   `json:"cumulative_pnl"`
}

// Result 聚合一次回放的输出，报表直接消费这个结构。
type Result struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Candles  int    `json:"candles"`

	Events []gap.Event      `json:"events"`
	Trades []mm.TradeResult `json:"trades"`
	Equity []EquityPoint    `json:"equity"`

	Ledger   mm.LedgerStats         `json:"ledger"`
	GapStats gap.StatisticsSnapshot `json:"gap_stats"`
	Final    mm.EngineStats         `json:"final"`

	// Window 输入 K 线，报表画价格曲线用。
	Window []market.Candle `json:"-"`
}

// collector buffers engine events for the result.
type collector struct {
	events []gap.Event
	trades []mm.TradeResult
}

func (c *collector) RecordGap(ev gap.Event)       { c.events = append(c.events, ev) }
func (c *collector) RecordOrder(mm.GridOrder)     {}
func (c *collector) RecordFill(mm.Fill)           {}
func (c *collector) RecordTrade(r mm.TradeResult) { c.trades = append(c.trades, r) }

// Run replays candles through a fresh engine in arrival order. Candles are
// expected oldest first; replaying the same slice twice yields identical
// results.
func Run(ctx context.Context, candles []market.Candle, opts Options) (*Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("没有可回放的 K 线")
	}
	col := &collector{}
	sinks := append([]mm.Sink{col}, opts.Sinks...)
	engine, err := mm.NewEngine(mm.EngineConfig{
		Symbol:           opts.Symbol,
		TimeframeMinutes: opts.TimeframeMinutes,
		Grid:             opts.Grid,
		EntryTiming:      opts.EntryTiming,
	}, sinks...)
	if err != nil {
		return nil, err
	}

	interval := market.Interval(opts.TimeframeMinutes)
	logger.Infof("replay: %s %s, %d 根 K 线", opts.Symbol, interval, len(candles))
	start := time.Now()

	for i, c := range candles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		engine.ProcessCandle(c)
		if (i+1)%5000 == 0 {
			logger.Debugf("replay: %d/%d", i+1, len(candles))
		}
	}
	if opts.CloseAtEnd {
		if r := engine.CloseManual(mm.CloseManualReason); r != nil {
			logger.Infof("replay: 收尾平仓 %s %.4f USDT", r.Status, r.RealizedPnL)
		}
	}

	res := &Result{
		Symbol:   opts.Symbol,
		Interval: interval,
		Candles:  len(candles),
		Events:   col.events,
		Trades:   col.trades,
		Ledger:   engine.Ledger().Stats(),
		GapStats: engine.GapStats().Snapshot(time.Now().UTC()),
		Final:    engine.Stats(),
		Window:   candles,
	}
	res.Equity = make([]EquityPoint, 0, len(col.trades))
	for _, t := range col.trades {
		res.Equity = append(res.Equity, EquityPoint{Time: t.CloseTime, CumulativePnL: t.CumulativePnL})
	}

	logger.Infof("replay: 完成，%d gap / %d 笔交易，耗时 %s",
		len(col.events), len(col.trades), time.Since(start).Round(time.Millisecond))
	return res, nil
}

// RunFromSource fetches recent history from a live source and replays it.
func RunFromSource(ctx context.Context, src market.Source, limit int, opts Options) (*Result, error) {
	interval := market.Interval(opts.TimeframeMinutes)
	candles, err := src.FetchHistory(ctx, opts.Symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("拉取历史失败: %w", err)
	}
	return Run(ctx, candles, opts)
}
