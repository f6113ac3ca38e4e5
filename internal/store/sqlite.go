package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"extgap/internal/gap"
	"extgap/internal/logger"
	"extgap/internal/mm"
)

// EventStore 将引擎产生的事件追加写入 SQLite。所有表只追加不回改，
// 回放与复盘直接读库。
type EventStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenEventStore opens (or creates) the database file and applies the
// schema. The modernc driver is pure Go, no cgo involved.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 失败: %w", err)
	}
	// 单写者即可，SQLite 下并发写没有意义。
	db.SetMaxOpenConns(1)
	s := &EventStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *EventStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS gap_events (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            detected_at INTEGER NOT NULL,
            symbol TEXT NOT NULL,
            polarity TEXT NOT NULL,
            gap_level REAL NOT NULL,
            opening_bar_time INTEGER NOT NULL,
            detection_bar_time INTEGER NOT NULL,
            is_first_gap INTEGER NOT NULL,
            is_reversal INTEGER NOT NULL,
            sequence_number INTEGER NOT NULL,
            window_size INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS grid_orders (
            row_id INTEGER PRIMARY KEY AUTOINCREMENT,
            order_id TEXT NOT NULL,
            symbol TEXT NOT NULL,
            side TEXT NOT NULL,
            price REAL NOT NULL,
            quantity REAL NOT NULL,
            notional_usd REAL NOT NULL,
            level INTEGER NOT NULL,
            atr_multiplier REAL NOT NULL,
            status TEXT NOT NULL,
            placed_at INTEGER NOT NULL,
            filled_at INTEGER,
            fill_price REAL
        )`,
		`CREATE TABLE IF NOT EXISTS fills (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            order_id TEXT NOT NULL,
            symbol TEXT NOT NULL,
            side TEXT NOT NULL,
            price REAL NOT NULL,
            quantity REAL NOT NULL,
            notional_usd REAL NOT NULL,
            fee REAL NOT NULL,
            is_entry INTEGER NOT NULL,
            fill_time INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS trade_results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            symbol TEXT NOT NULL,
            side TEXT NOT NULL,
            quantity REAL NOT NULL,
            avg_entry REAL NOT NULL,
            exit_price REAL NOT NULL,
            gross_pnl REAL NOT NULL,
            fees REAL NOT NULL,
            realized_pnl REAL NOT NULL,
            status TEXT NOT NULL,
            close_reason TEXT NOT NULL,
            num_fills INTEGER NOT NULL,
            size_usd REAL NOT NULL,
            opened_at INTEGER NOT NULL,
            closed_at INTEGER NOT NULL,
            cumulative_pnl REAL NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_gap_events_symbol ON gap_events(symbol, detection_bar_time)`,
		`CREATE INDEX IF NOT EXISTS idx_fills_order ON fills(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trade_results(symbol, closed_at)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("建表失败: %w", err)
		}
	}
	return nil
}

// RecordGap implements mm.Sink. Write failures are logged, never surfaced:
// persistence must not stall the candle pipeline.
func (s *EventStore) RecordGap(ev gap.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(context.Background(), `
        INSERT INTO gap_events
            (detected_at, symbol, polarity, gap_level, opening_bar_time,
             detection_bar_time, is_first_gap, is_reversal, sequence_number, window_size)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.DetectedAt.UnixMilli(), ev.Symbol, string(ev.Polarity), ev.GapLevel,
		ev.OpeningBarTime.UnixMilli(), ev.DetectionBarTime.UnixMilli(),
		boolToInt(ev.IsFirstGap), boolToInt(ev.IsReversal),
		ev.SequenceNumber, ev.WindowSizeBeforePrune)
	if err != nil {
		logger.Errorf("store: 写入 gap_events 失败: %v", err)
	}
}

func (s *EventStore) RecordOrder(o mm.GridOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var filledAt interface{}
	var fillPrice interface{}
	if !o.FilledAt.IsZero() {
		filledAt = o.FilledAt.UnixMilli()
		fillPrice = o.FillPrice
	}
	_, err := s.db.ExecContext(context.Background(), `
        INSERT INTO grid_orders
            (order_id, symbol, side, price, quantity, notional_usd, level, atr_multiplier,
             status, placed_at, filled_at, fill_price)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Symbol, string(o.Side), o.Price, o.Quantity, o.NotionalUSD,
		o.Level, o.ATRMult, string(o.Status), o.PlacedAt.UnixMilli(), filledAt, fillPrice)
	if err != nil {
		logger.Errorf("store: 写入 grid_orders 失败: %v", err)
	}
}

func (s *EventStore) RecordFill(f mm.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(context.Background(), `
        INSERT INTO fills
            (order_id, symbol, side, price, quantity, notional_usd, fee, is_entry, fill_time)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.OrderID, f.Symbol, string(f.Side), f.FillPrice, f.Quantity,
		f.NotionalUSD, f.Fee, boolToInt(f.IsEntry), f.FillTime.UnixMilli())
	if err != nil {
		logger.Errorf("store: 写入 fills 失败: %v", err)
	}
}

func (s *EventStore) RecordTrade(r mm.TradeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(context.Background(), `
        INSERT INTO trade_results
            (symbol, side, quantity, avg_entry, exit_price, gross_pnl, fees, realized_pnl,
             status, close_reason, num_fills, size_usd, opened_at, closed_at, cumulative_pnl)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Symbol, string(r.Side), r.SizeQty, r.EntryPrice, r.ExitPrice,
		r.GrossPnL, r.TotalFees, r.RealizedPnL, string(r.Status), string(r.CloseReason),
		r.NumFills, r.SizeUSD, r.OpenTime.UnixMilli(), r.CloseTime.UnixMilli(), r.CumulativePnL)
	if err != nil {
		logger.Errorf("store: 写入 trade_results 失败: %v", err)
	}
}

// TradeSummaryRow 复盘查询的聚合行。
type TradeSummaryRow struct {
	Symbol      string
	Trades      int
	Wins        int
	Losses      int
	RealizedPnL float64
	TotalFees   float64
}

// TradeSummary aggregates closed trades per symbol, oldest symbol first.
func (s *EventStore) TradeSummary(ctx context.Context) ([]TradeSummaryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
        SELECT symbol,
               COUNT(*),
               SUM(CASE WHEN status='WIN' THEN 1 ELSE 0 END),
               SUM(CASE WHEN status='LOSS' THEN 1 ELSE 0 END),
               SUM(realized_pnl),
               SUM(fees)
        FROM trade_results
        GROUP BY symbol
        ORDER BY MIN(closed_at) ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TradeSummaryRow
	for rows.Next() {
		var r TradeSummaryRow
		if err := rows.Scan(&r.Symbol, &r.Trades, &r.Wins, &r.Losses, &r.RealizedPnL, &r.TotalFees); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountGaps returns the number of recorded gap events for a symbol.
func (s *EventStore) CountGaps(ctx context.Context, symbol string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gap_events WHERE symbol=?`, symbol).Scan(&n)
	return n, err
}

func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
