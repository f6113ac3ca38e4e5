package recorder

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"extgap/internal/gap"
	"extgap/internal/mm"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestCSVRecorderWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	r, err := NewCSVRecorder(dir)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r.RecordGap(gap.Event{
		DetectedAt: now, Symbol: "BTCUSDT", Polarity: gap.Bearish,
		GapLevel: 105, OpeningBarTime: now, DetectionBarTime: now,
		IsFirstGap: true, SequenceNumber: 1,
	})
	r.RecordGap(gap.Event{
		DetectedAt: now.Add(time.Hour), Symbol: "BTCUSDT", Polarity: gap.Bullish,
		GapLevel: 103, OpeningBarTime: now, DetectionBarTime: now.Add(time.Hour),
		IsReversal: true, SequenceNumber: 1,
	})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows := readCSV(t, filepath.Join(dir, "gaps.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "detected_at" {
		t.Fatalf("header = %v", rows[0])
	}
	if rows[1][2] != "bearish" || rows[2][2] != "bullish" {
		t.Fatalf("polarities = %q %q", rows[1][2], rows[2][2])
	}
}

func TestCSVRecorderAppendsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	r1, err := NewCSVRecorder(dir)
	if err != nil {
		t.Fatalf("first recorder: %v", err)
	}
	r1.RecordFill(mm.Fill{OrderID: "o-1", Symbol: "BTCUSDT", Side: mm.FillBuy, FillPrice: 100, FillTime: now})
	r1.Close()

	r2, err := NewCSVRecorder(dir)
	if err != nil {
		t.Fatalf("second recorder: %v", err)
	}
	r2.RecordFill(mm.Fill{OrderID: "o-2", Symbol: "BTCUSDT", Side: mm.FillSell, FillPrice: 101, FillTime: now})
	r2.Close()

	rows := readCSV(t, filepath.Join(dir, "fills.csv"))
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != "o-1" || rows[2][0] != "o-2" {
		t.Fatalf("order ids = %q %q", rows[1][0], rows[2][0])
	}
}

func TestCSVRecorderTradeRow(t *testing.T) {
	dir := t.TempDir()
	r, err := NewCSVRecorder(dir)
	if err != nil {
		t.Fatalf("NewCSVRecorder: %v", err)
	}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.RecordTrade(mm.TradeResult{
		Symbol: "BTCUSDT", Side: mm.Short, Status: mm.Win,
		EntryPrice: 105.75, ExitPrice: 105.5, SizeUSD: 100, SizeQty: 0.95,
		NumFills: 1, RealizedPnL: 0.21, CloseReason: mm.CloseSignalReversal,
		OpenTime: now, CloseTime: now.Add(5 * time.Minute),
	})
	r.Close()

	rows := readCSV(t, filepath.Join(dir, "trades.csv"))
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	row := rows[1]
	if row[0] != "BTCUSDT" || row[1] != "SHORT" || row[2] != "WIN" {
		t.Fatalf("row = %v", row)
	}
	if row[11] != "SIGNAL_REVERSAL" {
		t.Fatalf("close reason = %q", row[11])
	}
}
