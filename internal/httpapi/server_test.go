package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"extgap/internal/gap"
	"extgap/internal/market"
	"extgap/internal/mm"
	"extgap/internal/store"
)

type fakeSource struct{ stats market.SourceStats }

func (f *fakeSource) Stats() market.SourceStats { return f.stats }

// fundingSource 额外实现 FundingSource。
type fundingSource struct {
	fakeSource
	rate float64
	err  error
}

func (f *fundingSource) GetFundingRate(_ context.Context, symbol string) (float64, error) {
	if symbol == "" {
		return 0, errors.New("symbol is required")
	}
	return f.rate, f.err
}

func newTestServer(t *testing.T, holder *StatsHolder) *Server {
	t.Helper()
	cache := store.NewCandleCache(10)
	cache.Append("BTCUSDT", "5m", market.Candle{
		OpenTimeMs: 1_700_000_100_000, CloseTimeMs: 1_700_000_399_999, Close: 50000,
	})
	srv, err := NewServer(Config{
		Holder:  holder,
		Source:  &fakeSource{stats: market.SourceStats{Reconnects: 2}},
		Candles: cache,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	var body map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return w, body
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &StatsHolder{})
	w, body := get(t, srv, "/healthz")
	if w.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, body)
	}
}

func TestStatsBeforeFirstSnapshot(t *testing.T) {
	srv := newTestServer(t, &StatsHolder{})
	w, _ := get(t, srv, "/api/stats")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", w.Code)
	}
}

func TestStatusAndStats(t *testing.T) {
	holder := &StatsHolder{}
	holder.Publish(mm.EngineStats{
		Symbol: "BTCUSDT",
		Signal: gap.Bearish,
		State:  mm.GridState{ActiveOrders: 3},
		Ledger: mm.LedgerStats{TotalTrades: 4, CumulativePnL: 1.25},
	})
	srv := newTestServer(t, holder)

	w, body := get(t, srv, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if body["symbol"] != "BTCUSDT" || body["engine_ready"] != true {
		t.Fatalf("status = %v", body)
	}
	if body["active_orders"].(float64) != 3 {
		t.Fatalf("active_orders = %v", body["active_orders"])
	}
	src := body["source"].(map[string]any)
	if src["Reconnects"].(float64) != 2 {
		t.Fatalf("source stats = %v", src)
	}

	w, body = get(t, srv, "/api/stats")
	if w.Code != http.StatusOK || body["symbol"] != "BTCUSDT" {
		t.Fatalf("stats = %d %v", w.Code, body)
	}
}

func TestStatusFundingRate(t *testing.T) {
	holder := &StatsHolder{}
	holder.Publish(mm.EngineStats{Symbol: "BTCUSDT"})

	srv, err := NewServer(Config{
		Holder: holder,
		Source: &fundingSource{rate: 0.0001},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	w, body := get(t, srv, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if body["funding_rate"].(float64) != 0.0001 {
		t.Fatalf("funding_rate = %v", body["funding_rate"])
	}

	// 查询失败只是少一个字段，接口照常返回。
	srv, err = NewServer(Config{
		Holder: holder,
		Source: &fundingSource{err: errors.New("timeout")},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	w, body = get(t, srv, "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if _, present := body["funding_rate"]; present {
		t.Fatal("funding_rate present despite lookup error")
	}
}

func TestCandlesEndpoint(t *testing.T) {
	srv := newTestServer(t, &StatsHolder{})

	w, _ := get(t, srv, "/api/candles")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing params = %d, want 400", w.Code)
	}

	w, body := get(t, srv, "/api/candles?symbol=BTCUSDT&interval=5m")
	if w.Code != http.StatusOK {
		t.Fatalf("candles code = %d", w.Code)
	}
	candles := body["candles"].([]any)
	if len(candles) != 1 {
		t.Fatalf("candles = %v", candles)
	}
}

func TestTradesWithoutStore(t *testing.T) {
	srv := newTestServer(t, &StatsHolder{})
	w, _ := get(t, srv, "/api/trades")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d, want 404", w.Code)
	}
}
