package recorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"extgap/internal/gap"
	"extgap/internal/logger"
	"extgap/internal/mm"
)

// CSVRecorder 将引擎事件镜像到目录下的四个 CSV 文件，方便直接用表格
// 工具复盘。文件首次写入时带表头，之后只追加。
type CSVRecorder struct {
	mu  sync.Mutex
	dir string

	files   map[string]*os.File
	writers map[string]*csv.Writer
}

func NewCSVRecorder(dir string) (*CSVRecorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建 CSV 目录失败: %w", err)
	}
	return &CSVRecorder{
		dir:     dir,
		files:   make(map[string]*os.File),
		writers: make(map[string]*csv.Writer),
	}, nil
}

// writer returns the csv writer for name, opening the file and writing the
// header on first use. Caller holds the lock.
func (r *CSVRecorder) writer(name string, header []string) (*csv.Writer, error) {
	if w, ok := r.writers[name]; ok {
		return w, nil
	}
	path := filepath.Join(r.dir, name+".csv")
	info, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if statErr != nil || info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	r.files[name] = f
	r.writers[name] = w
	return w, nil
}

func (r *CSVRecorder) append(name string, header, row []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, err := r.writer(name, header)
	if err != nil {
		logger.Errorf("recorder: 打开 %s.csv 失败: %v", name, err)
		return
	}
	if err := w.Write(row); err != nil {
		logger.Errorf("recorder: 写入 %s.csv 失败: %v", name, err)
		return
	}
	w.Flush()
}

var gapHeader = []string{
	"detected_at", "symbol", "polarity", "gap_level",
	"opening_bar_time", "detection_bar_time", "is_first_gap", "is_reversal", "sequence",
}

func (r *CSVRecorder) RecordGap(ev gap.Event) {
	r.append("gaps", gapHeader, []string{
		ev.DetectedAt.UTC().Format(time.RFC3339),
		ev.Symbol,
		string(ev.Polarity),
		fmtFloat(ev.GapLevel),
		ev.OpeningBarTime.UTC().Format(time.RFC3339),
		ev.DetectionBarTime.UTC().Format(time.RFC3339),
		strconv.FormatBool(ev.IsFirstGap),
		strconv.FormatBool(ev.IsReversal),
		strconv.Itoa(ev.SequenceNumber),
	})
}

var orderHeader = []string{
	"order_id", "symbol", "side", "price", "quantity", "notional_usd",
	"level", "status", "placed_at",
}

func (r *CSVRecorder) RecordOrder(o mm.GridOrder) {
	r.append("orders", orderHeader, []string{
		o.ID,
		o.Symbol,
		string(o.Side),
		fmtFloat(o.Price),
		fmtFloat(o.Quantity),
		fmtFloat(o.NotionalUSD),
		strconv.Itoa(o.Level),
		string(o.Status),
		o.PlacedAt.UTC().Format(time.RFC3339),
	})
}

var fillHeader = []string{
	"order_id", "symbol", "side", "price", "quantity", "notional_usd",
	"fee", "is_entry", "fill_time",
}

func (r *CSVRecorder) RecordFill(f mm.Fill) {
	r.append("fills", fillHeader, []string{
		f.OrderID,
		f.Symbol,
		string(f.Side),
		fmtFloat(f.FillPrice),
		fmtFloat(f.Quantity),
		fmtFloat(f.NotionalUSD),
		fmtFloat(f.Fee),
		strconv.FormatBool(f.IsEntry),
		f.FillTime.UTC().Format(time.RFC3339),
	})
}

var tradeHeader = []string{
	"symbol", "side", "status", "entry_price", "exit_price", "size_usd", "size_qty",
	"num_fills", "gross_pnl", "fees", "realized_pnl", "close_reason",
	"open_time", "close_time", "cumulative_pnl",
}

func (r *CSVRecorder) RecordTrade(t mm.TradeResult) {
	r.append("trades", tradeHeader, []string{
		t.Symbol,
		string(t.Side),
		string(t.Status),
		fmtFloat(t.EntryPrice),
		fmtFloat(t.ExitPrice),
		fmtFloat(t.SizeUSD),
		fmtFloat(t.SizeQty),
		strconv.Itoa(t.NumFills),
		fmtFloat(t.GrossPnL),
		fmtFloat(t.TotalFees),
		fmtFloat(t.RealizedPnL),
		string(t.CloseReason),
		t.OpenTime.UTC().Format(time.RFC3339),
		t.CloseTime.UTC().Format(time.RFC3339),
		fmtFloat(t.CumulativePnL),
	})
}

func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, w := range r.writers {
		w.Flush()
		if err := w.Error(); err != nil && first == nil {
			first = err
		}
		if err := r.files[name].Close(); err != nil && first == nil {
			first = err
		}
	}
	r.files = make(map[string]*os.File)
	r.writers = make(map[string]*csv.Writer)
	return first
}

func fmtFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
