package mm

import (
	"fmt"
	"time"

	"extgap/internal/gap"
	"extgap/internal/indicator"
	"extgap/internal/logger"
	"extgap/internal/market"
)

// Sink receives core events for persistence or notification. Delivery is
// best-effort and fire-and-forget: sink failures never touch engine state.
type Sink interface {
	RecordGap(ev gap.Event)
	RecordOrder(order GridOrder)
	RecordFill(fill Fill)
	RecordTrade(result TradeResult)
}

const positionMaxAge = 24 * time.Hour

// EngineConfig 执行引擎配置，构造后只读。
type EngineConfig struct {
	Symbol           string
	TimeframeMinutes int
	Grid             GridConfig
	EntryTiming      gap.EntryTiming
}

// pendingSignal defers grid placement to the next bar's open when the
// NextBarOpen entry-timing policy is active.
type pendingSignal struct {
	polarity gap.Polarity
}

// Engine drives one symbol through the per-candle pipeline: expiry check,
// ATR update, gap detection, reversal close, grid re-bias, fill simulation
// and inventory/ledger updates. Single caller, one candle at a time, no
// locks.
type Engine struct {
	cfg EngineConfig

	atr       *indicator.ATR
	detector  *gap.Detector
	grid      *GridManager
	fills     *FillSimulator
	inventory *InventoryTracker
	ledger    *PnLLedger
	gapStats  *gap.Statistics

	sinks []Sink

	state      GridState
	pending    *pendingSignal
	lastCandle *market.Candle
}

func NewEngine(cfg EngineConfig, sinks ...Sink) (*Engine, error) {
	cfg.Grid = cfg.Grid.WithDefaults()
	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.EntryTiming == "" {
		cfg.EntryTiming = gap.EntryImmediateAtClose
	}

	e := &Engine{
		cfg: cfg,
		atr: indicator.NewATR(cfg.Grid.ATRPeriod),
		detector: gap.NewDetector(gap.Config{
			Symbol:           cfg.Symbol,
			TimeframeMinutes: cfg.TimeframeMinutes,
			Timing:           cfg.EntryTiming,
		}),
		grid:      NewGridManager(cfg.Symbol, cfg.Grid),
		fills:     NewFillSimulator(cfg.Grid.MakerFeeRate),
		inventory: NewInventoryTracker(cfg.Symbol),
		ledger:    NewPnLLedger(cfg.Grid.MakerFeeRate, cfg.Grid.TakerFeeRate),
		gapStats:  gap.NewStatistics(time.Now().UTC()),
		sinks:     sinks,
	}
	logger.Infof("%s: engine initialized, levels=%d notional=%.0f/level atr_period=%d timing=%s",
		cfg.Symbol, cfg.Grid.NumLevels, cfg.Grid.NotionalPerLevel, cfg.Grid.ATRPeriod, cfg.EntryTiming)
	return e, nil
}

// AttachSinks adds sinks after construction. The live runner warms the
// engine up on history first and attaches sinks only for live candles,
// so a restart never re-persists or re-notifies historical events.
func (e *Engine) AttachSinks(sinks ...Sink) {
	e.sinks = append(e.sinks, sinks...)
}

// ProcessCandle runs one closed candle through the full pipeline and
// returns the gap event when one was detected. Nothing here is fatal:
// malformed input degrades to ignore-and-continue.
func (e *Engine) ProcessCandle(c market.Candle) *gap.Event {
	// Expiry is checked before the candle is processed so a stale position
	// never collects new fills.
	e.checkExpiry(c)

	atrValue, atrOK := e.atr.Update(c)

	// Deferred entry: a signal from the previous bar places its ladder at
	// this bar's open.
	if e.pending != nil {
		e.applySignal(e.pending.polarity, c.Open, c)
		e.pending = nil
	}

	ev := e.detector.Update(c)
	if ev != nil {
		e.gapStats.RecordGap(*ev)
		e.emitGap(*ev)
		e.handleSignal(*ev, c, atrValue, atrOK)
	}

	if e.state.CurrentSignal != "" {
		e.processFills(c, atrValue, atrOK)
	}

	e.lastCandle = &c
	return ev
}

func (e *Engine) handleSignal(ev gap.Event, c market.Candle, atrValue float64, atrOK bool) {
	logger.Infof("%s: gap signal %s level=%.2f first=%v seq=#%d",
		e.cfg.Symbol, ev.Polarity, ev.GapLevel, ev.IsFirstGap, ev.SequenceNumber)

	if !ev.IsFirstGap && e.inventory.HasPosition() {
		e.closePosition(c.Close, c.CloseTime(), c, CloseSignalReversal)
	}

	// The old ladder dies at detection. Only placement may be deferred,
	// otherwise a stale rung could fill against the new signal.
	e.grid.CancelAll()
	e.state.CurrentSignal = ""
	e.state.ActiveOrders = 0

	if !atrOK {
		// No retry here: the next natural signal change re-attempts.
		logger.Warnf("%s: no ATR yet, skipping grid placement", e.cfg.Symbol)
		return
	}

	if e.cfg.EntryTiming == gap.EntryNextBarOpen {
		e.pending = &pendingSignal{polarity: ev.Polarity}
		logger.Infof("%s: deferring %s grid to next bar open", e.cfg.Symbol, ev.Polarity)
		return
	}
	e.applySignal(ev.Polarity, c.Close, c)
}

// applySignal re-biases the ladder around referencePrice. ATR is read
// fresh: by the time a deferred signal applies, warm-up has advanced.
func (e *Engine) applySignal(polarity gap.Polarity, referencePrice float64, c market.Candle) {
	atrValue, ok := e.atr.Value()
	if !ok {
		logger.Warnf("%s: ATR unavailable at signal apply, skipping", e.cfg.Symbol)
		return
	}
	_, placed := e.grid.HandleSignalChange(polarity, referencePrice, atrValue, c.CloseTime())
	for _, o := range placed {
		e.emitOrder(*o)
	}

	e.state.CurrentSignal = polarity
	e.state.SignalPrice = referencePrice
	e.state.SignalTime = c.CloseTime()
	e.state.ATRValue = atrValue
	e.state.ActiveOrders = len(placed)
}

func (e *Engine) processFills(c market.Candle, atrValue float64, atrOK bool) {
	fills := e.fills.CheckFills(c, e.grid.PendingOrders())
	for _, fill := range fills {
		filled := e.grid.MarkFilled(fill.OrderID, fill.FillPrice, fill.FillTime, fill.CandleTime)
		if filled != nil {
			e.emitOrder(*filled)
		}

		e.ledger.RecordFill(fill)
		e.emitFill(fill)
		e.inventory.AddFill(fill)

		if e.cfg.Grid.RefreshOnFill && atrOK && filled != nil {
			if replacement := e.grid.RefreshFilledLevel(filled, c.Close, atrValue, c.CloseTime()); replacement != nil {
				e.emitOrder(*replacement)
			}
		}
	}
	e.state.FilledOrders += len(fills)
	e.state.ActiveOrders = len(e.grid.PendingOrders())
}

// checkExpiry force-closes a position held for 24h or longer, at the
// incoming candle's close with the taker fee.
func (e *Engine) checkExpiry(c market.Candle) *TradeResult {
	inv := e.inventory.Current()
	if inv == nil {
		return nil
	}
	if c.CloseTime().Sub(inv.FirstEntryTime) < positionMaxAge {
		return nil
	}
	logger.Infof("%s: position expired after 24h", e.cfg.Symbol)
	result := e.closePosition(c.Close, c.CloseTime(), c, CloseExpiry)
	e.grid.CancelAll()
	e.state.ActiveOrders = 0
	return result
}

func (e *Engine) closePosition(exitPrice float64, exitTime time.Time, c market.Candle, reason CloseReason) *TradeResult {
	inv := e.inventory.Current()
	if inv == nil {
		return nil
	}

	side := FillSell
	if inv.Side == Short {
		side = FillBuy
	}
	exitFill := e.fills.SimulateMarketExit(e.cfg.Symbol, side, inv.TotalQuantity, exitPrice, e.cfg.Grid.TakerFeeRate, c)

	result := e.inventory.ClosePosition(exitPrice, exitTime, exitFill.Fee, reason)
	if result == nil {
		return nil
	}
	stamped := e.ledger.RecordTrade(*result)
	e.gapStats.RecordTradeClose(string(stamped.Status), stamped.RealizedPnL, stamped.CumulativePnL, stamped.SizeUSD)
	e.emitTrade(stamped)
	return &stamped
}

// CloseManual closes any open position at the last known price, cancelling
// the ladder. Used for operator stops and shutdown.
func (e *Engine) CloseManual(reason CloseReason) *TradeResult {
	if e.lastCandle == nil || !e.inventory.HasPosition() {
		return nil
	}
	c := *e.lastCandle
	result := e.closePosition(c.Close, c.CloseTime(), c, reason)
	e.grid.CancelAll()
	e.state.ActiveOrders = 0
	return result
}

func (e *Engine) emitGap(ev gap.Event) {
	for _, s := range e.sinks {
		s.RecordGap(ev)
	}
}

func (e *Engine) emitOrder(o GridOrder) {
	for _, s := range e.sinks {
		s.RecordOrder(o)
	}
}

func (e *Engine) emitFill(f Fill) {
	for _, s := range e.sinks {
		s.RecordFill(f)
	}
}

func (e *Engine) emitTrade(r TradeResult) {
	for _, s := range e.sinks {
		s.RecordTrade(r)
	}
}

// Inventory exposes the tracker for read-only queries by the same caller.
func (e *Engine) Inventory() *InventoryTracker { return e.inventory }

func (e *Engine) Ledger() *PnLLedger { return e.ledger }

func (e *Engine) GapStats() *gap.Statistics { return e.gapStats }

// EngineStats 各组件状态的合并快照。
type EngineStats struct {
	Symbol     string                 `json:"symbol"`
	Signal     gap.Polarity           `json:"signal,omitempty"`
	State      GridState              `json:"grid_state"`
	ATR        indicator.ATRState     `json:"atr"`
	Grid       GridStats              `json:"grid"`
	Position   *Inventory             `json:"position,omitempty"`
	Ledger     LedgerStats            `json:"ledger"`
	Gaps       gap.StatisticsSnapshot `json:"gaps"`
	Violations int                    `json:"invariant_violations"`
}

func (e *Engine) Stats() EngineStats {
	return EngineStats{
		Symbol:     e.cfg.Symbol,
		Signal:     e.state.CurrentSignal,
		State:      e.state,
		ATR:        e.atr.State(),
		Grid:       e.grid.Stats(),
		Position:   e.inventory.Current(),
		Ledger:     e.ledger.Stats(),
		Gaps:       e.gapStats.Snapshot(time.Now().UTC()),
		Violations: e.inventory.Violations(),
	}
}

// FormatStatus renders a one-line status for logs and the status API.
func (e *Engine) FormatStatus() string {
	pos := "No position"
	if inv := e.inventory.Current(); inv != nil {
		pos = fmt.Sprintf("%s %.6f @ %.2f", inv.Side, inv.TotalQuantity, inv.AverageEntry)
	}
	signal := "None"
	if e.state.CurrentSignal != "" {
		signal = string(e.state.CurrentSignal)
	}
	return fmt.Sprintf("%s | Signal: %s | Position: %s | Grid: %d pending | %s",
		e.cfg.Symbol, signal, pos, len(e.grid.pending), e.ledger.FormatSummary())
}
