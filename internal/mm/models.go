// Package mm is the simulated market-making engine: an ATR-spaced grid of
// limit orders biased by the latest external-gap signal, with candle-based
// fill simulation, VWAP inventory aggregation and fee-aware P&L.
package mm

import (
	"fmt"
	"time"

	"extgap/internal/gap"
)

// OrderSide is the book side a resting order occupies.
type OrderSide string

const (
	SideBid OrderSide = "BID"
	SideAsk OrderSide = "ASK"
)

// FillSide is the executed direction.
type FillSide string

const (
	FillBuy  FillSide = "BUY"
	FillSell FillSide = "SELL"
)

// PositionSide is the direction of the aggregated inventory.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type TradeStatus string

const (
	Win       TradeStatus = "WIN"
	Loss      TradeStatus = "LOSS"
	Breakeven TradeStatus = "BREAKEVEN"
)

type CloseReason string

const (
	CloseSignalReversal CloseReason = "SIGNAL_REVERSAL"
	CloseExpiry         CloseReason = "24H_EXPIRY"
	CloseManualReason   CloseReason = "MANUAL"
	CloseShutdown       CloseReason = "SHUTDOWN"
)

// GridConfig 网格参数，构造后只读。
type GridConfig struct {
	NumLevels         int     `toml:"num_levels"`
	BaseATRMultiplier float64 `toml:"base_atr_multiplier"`
	ATRIncrement      float64 `toml:"atr_increment"`
	NotionalPerLevel  float64 `toml:"notional_per_level"`
	ATRPeriod         int     `toml:"atr_period"`
	MakerFeeRate      float64 `toml:"maker_fee_rate"`
	TakerFeeRate      float64 `toml:"taker_fee_rate"`
	RefreshOnFill     bool    `toml:"refresh_on_fill"`
}

func (c GridConfig) WithDefaults() GridConfig {
	out := c
	if out.NumLevels <= 0 {
		out.NumLevels = 3
	}
	if out.BaseATRMultiplier <= 0 {
		out.BaseATRMultiplier = 0.5
	}
	if out.ATRIncrement <= 0 {
		out.ATRIncrement = 0.5
	}
	if out.NotionalPerLevel <= 0 {
		out.NotionalPerLevel = 100
	}
	if out.ATRPeriod <= 0 {
		out.ATRPeriod = 14
	}
	if out.MakerFeeRate <= 0 {
		out.MakerFeeRate = 0.00002
	}
	if out.TakerFeeRate <= 0 {
		out.TakerFeeRate = 0.0002
	}
	return out
}

func (c GridConfig) Validate() error {
	if c.MakerFeeRate < 0 || c.TakerFeeRate < 0 {
		return fmt.Errorf("negative fee rate")
	}
	if c.MakerFeeRate > c.TakerFeeRate {
		return fmt.Errorf("maker fee %v above taker fee %v", c.MakerFeeRate, c.TakerFeeRate)
	}
	return nil
}

// GridOrder is a simulated resting limit order. Owned by the GridManager
// until it reaches a terminal status; terminal orders are never reopened.
type GridOrder struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	NotionalUSD float64     `json:"notional_usd"`
	PlacedAt    time.Time   `json:"placed_at"`
	Level       int         `json:"level"`
	ATRMult     float64     `json:"atr_multiplier"`
	Status      OrderStatus `json:"status"`

	FilledAt       time.Time `json:"filled_at,omitempty"`
	FillPrice      float64   `json:"fill_price,omitempty"`
	FillCandleTime time.Time `json:"fill_candle_time,omitempty"`
}

// Fill records one simulated execution. Immutable once produced.
type Fill struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        FillSide  `json:"side"`
	FillPrice   float64   `json:"fill_price"`
	Quantity    float64   `json:"quantity"`
	NotionalUSD float64   `json:"notional_usd"`
	FillTime    time.Time `json:"fill_time"`
	CandleTime  time.Time `json:"candle_time"`
	CandleHigh  float64   `json:"candle_high"`
	CandleLow   float64   `json:"candle_low"`
	Fee         float64   `json:"fee"`
	IsEntry     bool      `json:"is_entry"`
}

// Inventory is the single live VWAP position for a symbol.
type Inventory struct {
	Symbol           string       `json:"symbol"`
	Side             PositionSide `json:"side"`
	TotalQuantity    float64      `json:"total_quantity"`
	AverageEntry     float64      `json:"average_entry_price"`
	TotalNotionalUSD float64      `json:"total_notional_usd"`
	TotalEntryFees   float64      `json:"total_entry_fees"`
	Fills            []Fill       `json:"fills"`
	FirstEntryTime   time.Time    `json:"first_entry_time"`
	LastEntryTime    time.Time    `json:"last_entry_time"`
}

func (i *Inventory) NumFills() int { return len(i.Fills) }

// TradeResult is a closed position, stamped with running cumulative
// counters by the ledger when recorded.
type TradeResult struct {
	Status      TradeStatus  `json:"status"`
	OpenTime    time.Time    `json:"open_time"`
	CloseTime   time.Time    `json:"close_time"`
	Symbol      string       `json:"symbol"`
	Side        PositionSide `json:"side"`
	EntryPrice  float64      `json:"entry_price"`
	ExitPrice   float64      `json:"exit_price"`
	SizeUSD     float64      `json:"position_size_usd"`
	SizeQty     float64      `json:"position_size_qty"`
	NumFills    int          `json:"num_fills"`
	GrossPnL    float64      `json:"gross_pnl"`
	RealizedPnL float64      `json:"realized_pnl"`
	TotalFees   float64      `json:"total_fees"`
	CloseReason CloseReason  `json:"close_reason"`

	CumulativeWins   int     `json:"cumulative_wins"`
	CumulativeLosses int     `json:"cumulative_losses"`
	CumulativePnL    float64 `json:"cumulative_pnl"`
	CumulativeFees   float64 `json:"cumulative_fees"`
}

// GridState 当前网格状态快照。
type GridState struct {
	CurrentSignal gap.Polarity `json:"current_signal,omitempty"`
	SignalPrice   float64      `json:"signal_price"`
	SignalTime    time.Time    `json:"signal_time"`
	ATRValue      float64      `json:"atr_value"`
	ActiveOrders  int          `json:"active_orders"`
	FilledOrders  int          `json:"filled_orders"`
}
