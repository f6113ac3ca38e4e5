package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"extgap/internal/gap"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extgap.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMinimalFileFillsDefaults(t *testing.T) {
	path := writeConfig(t, `symbol = "ethusdt"`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Symbol != "ETHUSDT" {
		t.Fatalf("symbol = %q, want ETHUSDT", cfg.Symbol)
	}
	if cfg.TimeframeMinutes != 5 {
		t.Fatalf("timeframe = %d, want 5", cfg.TimeframeMinutes)
	}
	if cfg.Timing() != gap.EntryImmediateAtClose {
		t.Fatalf("timing = %s", cfg.Timing())
	}
	if cfg.Grid.NumLevels != 3 || cfg.Grid.ATRPeriod != 14 {
		t.Fatalf("grid defaults missing: %+v", cfg.Grid)
	}
	if cfg.Binance.RESTBaseURL != "https://fapi.binance.com" {
		t.Fatalf("rest url = %q", cfg.Binance.RESTBaseURL)
	}
	if cfg.HTTP.Addr != ":8090" || cfg.Store.SQLitePath != "extgap.db" {
		t.Fatalf("defaults missing: http=%q store=%q", cfg.HTTP.Addr, cfg.Store.SQLitePath)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfig(t, `
symbol = "BTCUSDT"
timeframe_minutes = 60
entry_timing = "next_bar_open"

[grid]
num_levels = 5
notional_per_level = 250.0
maker_fee_rate = 0.00002
taker_fee_rate = 0.0002

[binance]
rest_base_url = "https://testnet.binancefuture.com"
history_limit = 200

[store]
sqlite_path = "/tmp/mm.db"
csv_dir = "/tmp/mm-csv"

[http]
enabled = true
addr = ":9000"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TimeframeMinutes != 60 || cfg.Timing() != gap.EntryNextBarOpen {
		t.Fatalf("core fields: %+v", cfg)
	}
	if cfg.Grid.NumLevels != 5 || cfg.Grid.NotionalPerLevel != 250 {
		t.Fatalf("grid: %+v", cfg.Grid)
	}
	// 未显式给出的 grid 字段仍应回填默认值。
	if cfg.Grid.BaseATRMultiplier != 0.5 || cfg.Grid.ATRIncrement != 0.5 {
		t.Fatalf("grid defaults: %+v", cfg.Grid)
	}
	if cfg.Binance.RESTBaseURL != "https://testnet.binancefuture.com" {
		t.Fatalf("rest url = %q", cfg.Binance.RESTBaseURL)
	}
	if cfg.Binance.WSBaseURL != "wss://fstream.binance.com" {
		t.Fatalf("ws url = %q", cfg.Binance.WSBaseURL)
	}
	ec := cfg.Engine()
	if ec.Symbol != "BTCUSDT" || ec.EntryTiming != gap.EntryNextBarOpen {
		t.Fatalf("engine config: %+v", ec)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad timeframe", `timeframe_minutes = 7`, "timeframe_minutes"},
		{"bad timing", `entry_timing = "at_noon"`, "entry_timing"},
		{"telegram missing token", "[telegram]\nenabled = true", "telegram"},
		{"maker above taker", "[grid]\nmaker_fee_rate = 0.01\ntaker_fee_rate = 0.0002", "maker"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
