package mm

import (
	"time"

	"github.com/google/uuid"

	"extgap/internal/gap"
	"extgap/internal/logger"
)

// GridLevel is one computed rung of the ladder before it becomes an order.
type GridLevel struct {
	Level       int
	Price       float64
	NotionalUSD float64
}

// GridManager owns the one-sided ladder of simulated limit orders. Pending
// orders keep placement order so fill checking stays deterministic on
// replay.
type GridManager struct {
	cfg     GridConfig
	symbol  string
	pending []*GridOrder
	filled  map[string]*GridOrder

	cancelledCount int
}

func NewGridManager(symbol string, cfg GridConfig) *GridManager {
	return &GridManager{
		cfg:    cfg,
		symbol: symbol,
		filled: make(map[string]*GridOrder),
	}
}

// CalculateLevels prices the ladder around referencePrice. Level i sits
// base+(i-1)*increment ATRs away; nearer levels carry slightly more size
// (weight floor 0.5).
func (g *GridManager) CalculateLevels(referencePrice float64, side OrderSide, atr float64) []GridLevel {
	levels := make([]GridLevel, 0, g.cfg.NumLevels)
	for i := 1; i <= g.cfg.NumLevels; i++ {
		dist := g.cfg.BaseATRMultiplier + float64(i-1)*g.cfg.ATRIncrement
		price := referencePrice - atr*dist
		if side == SideAsk {
			price = referencePrice + atr*dist
		}
		weight := 1.0 - float64(i-1)*0.1
		if weight < 0.5 {
			weight = 0.5
		}
		levels = append(levels, GridLevel{
			Level:       i,
			Price:       price,
			NotionalUSD: g.cfg.NotionalPerLevel * weight,
		})
	}
	return levels
}

// PlaceGrid creates the full ladder on one side of the book. All-or-nothing:
// every configured level is placed.
func (g *GridManager) PlaceGrid(referencePrice float64, side OrderSide, atr float64, placedAt time.Time) []*GridOrder {
	levels := g.CalculateLevels(referencePrice, side, atr)
	orders := make([]*GridOrder, 0, len(levels))
	for _, lv := range levels {
		order := &GridOrder{
			ID:          uuid.New().String(),
			Symbol:      g.symbol,
			Side:        side,
			Price:       lv.Price,
			Quantity:    lv.NotionalUSD / lv.Price,
			NotionalUSD: lv.NotionalUSD,
			PlacedAt:    placedAt,
			Level:       lv.Level,
			ATRMult:     g.cfg.BaseATRMultiplier + float64(lv.Level-1)*g.cfg.ATRIncrement,
			Status:      StatusPending,
		}
		g.pending = append(g.pending, order)
		orders = append(orders, order)
		logger.Debugf("placed %s order level=%d price=%.2f notional=%.2f", side, lv.Level, lv.Price, lv.NotionalUSD)
	}
	logger.Infof("%s: placed %d %s orders", g.symbol, len(orders), side)
	return orders
}

// CancelAll 取消全部挂单，返回被取消的订单。
func (g *GridManager) CancelAll() []*GridOrder {
	cancelled := make([]*GridOrder, 0, len(g.pending))
	for _, o := range g.pending {
		o.Status = StatusCancelled
		cancelled = append(cancelled, o)
	}
	g.pending = g.pending[:0]
	g.cancelledCount += len(cancelled)
	if len(cancelled) > 0 {
		logger.Infof("%s: cancelled %d pending orders", g.symbol, len(cancelled))
	}
	return cancelled
}

// MarkFilled moves a pending order to FILLED. Returns nil when the id is
// unknown or already terminal.
func (g *GridManager) MarkFilled(orderID string, fillPrice float64, filledAt, candleTime time.Time) *GridOrder {
	for idx, o := range g.pending {
		if o.ID != orderID {
			continue
		}
		o.Status = StatusFilled
		o.FillPrice = fillPrice
		o.FilledAt = filledAt
		o.FillCandleTime = candleTime
		g.pending = append(g.pending[:idx], g.pending[idx+1:]...)
		g.filled[o.ID] = o
		logger.Infof("%s: order filled %s level=%d price=%.2f qty=%.6f", g.symbol, o.Side, o.Level, fillPrice, o.Quantity)
		return o
	}
	return nil
}

// HandleSignalChange cancels every pending order on both sides and places a
// fresh ladder biased by the new polarity: bullish bids below, bearish asks
// above.
func (g *GridManager) HandleSignalChange(polarity gap.Polarity, referencePrice, atr float64, at time.Time) (cancelled, placed []*GridOrder) {
	cancelled = g.CancelAll()
	side := SideAsk
	if polarity == gap.Bullish {
		side = SideBid
	}
	placed = g.PlaceGrid(referencePrice, side, atr, at)
	logger.Infof("%s: signal change to %s, cancelled %d, placed %d %s orders",
		g.symbol, polarity, len(cancelled), len(placed), side)
	return cancelled, placed
}

// RefreshFilledLevel replaces a filled rung at the same ATR distance from
// the current price, but only when the new price is strictly better than
// the fill it replaces; otherwise the ladder would chase the position.
func (g *GridManager) RefreshFilledLevel(filled *GridOrder, currentPrice, atr float64, at time.Time) *GridOrder {
	if !g.cfg.RefreshOnFill {
		return nil
	}

	newPrice := currentPrice - atr*filled.ATRMult
	if filled.Side == SideAsk {
		newPrice = currentPrice + atr*filled.ATRMult
	}

	if filled.Side == SideBid && newPrice >= filled.FillPrice {
		logger.Debugf("skip refresh: new BID %.2f >= fill %.2f", newPrice, filled.FillPrice)
		return nil
	}
	if filled.Side == SideAsk && newPrice <= filled.FillPrice {
		logger.Debugf("skip refresh: new ASK %.2f <= fill %.2f", newPrice, filled.FillPrice)
		return nil
	}

	order := &GridOrder{
		ID:          uuid.New().String(),
		Symbol:      filled.Symbol,
		Side:        filled.Side,
		Price:       newPrice,
		Quantity:    filled.NotionalUSD / newPrice,
		NotionalUSD: filled.NotionalUSD,
		PlacedAt:    at,
		Level:       filled.Level,
		ATRMult:     filled.ATRMult,
		Status:      StatusPending,
	}
	g.pending = append(g.pending, order)
	logger.Infof("%s: refreshed level %d, new %s @ %.2f", g.symbol, order.Level, order.Side, newPrice)
	return order
}

// PendingOrders returns the live ladder in placement order.
func (g *GridManager) PendingOrders() []*GridOrder {
	out := make([]*GridOrder, len(g.pending))
	copy(out, g.pending)
	return out
}

func (g *GridManager) FilledOrder(id string) *GridOrder { return g.filled[id] }

// GridStats 挂单/成交/撤单计数。
type GridStats struct {
	Pending    int `json:"pending_orders"`
	Filled     int `json:"filled_orders"`
	Cancelled  int `json:"cancelled_orders"`
	PendingBid int `json:"pending_bid"`
	PendingAsk int `json:"pending_ask"`
}

func (g *GridManager) Stats() GridStats {
	s := GridStats{
		Pending:   len(g.pending),
		Filled:    len(g.filled),
		Cancelled: g.cancelledCount,
	}
	for _, o := range g.pending {
		if o.Side == SideBid {
			s.PendingBid++
		} else {
			s.PendingAsk++
		}
	}
	return s
}
