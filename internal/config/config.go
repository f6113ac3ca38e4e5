package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"extgap/internal/gap"
	"extgap/internal/mm"
)

// Config 运行配置，从 TOML 文件加载。
type Config struct {
	Symbol           string `toml:"symbol"`
	TimeframeMinutes int    `toml:"timeframe_minutes"`
	EntryTiming      string `toml:"entry_timing"`

	Grid     mm.GridConfig  `toml:"grid"`
	Binance  BinanceConfig  `toml:"binance"`
	Store    StoreConfig    `toml:"store"`
	Telegram TelegramConfig `toml:"telegram"`
	HTTP     HTTPConfig     `toml:"http"`
	Log      LogConfig      `toml:"log"`
	Report   ReportConfig   `toml:"report"`
	App      AppConfig      `toml:"app"`
}

// BinanceConfig USDT 永续行情端点配置。
type BinanceConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	WSBaseURL      string `toml:"ws_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	HistoryLimit   int    `toml:"history_limit"`
}

// StoreConfig 落盘配置：SQLite 主存储，CSV 镜像可选。
type StoreConfig struct {
	SQLitePath string `toml:"sqlite_path"`
	CSVDir     string `toml:"csv_dir"`
}

type TelegramConfig struct {
	Enabled        bool   `toml:"enabled"`
	BotToken       string `toml:"bot_token"`
	ChatID         string `toml:"chat_id"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// ReportConfig 复盘报表输出配置。
type ReportConfig struct {
	OutputDir   string `toml:"output_dir"`
	SnapshotPNG bool   `toml:"snapshot_png"`
}

type AppConfig struct {
	PidFile               string `toml:"pid_file"`
	StatusIntervalMinutes int    `toml:"status_interval_minutes"`
}

// Default returns a runnable configuration for BTCUSDT on 5m bars.
func Default() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Symbol == "" {
		c.Symbol = "BTCUSDT"
	}
	c.Symbol = strings.ToUpper(c.Symbol)
	if c.TimeframeMinutes <= 0 {
		c.TimeframeMinutes = 5
	}
	if c.EntryTiming == "" {
		c.EntryTiming = string(gap.EntryImmediateAtClose)
	}
	c.Grid = c.Grid.WithDefaults()

	if c.Binance.RESTBaseURL == "" {
		c.Binance.RESTBaseURL = "https://fapi.binance.com"
	}
	if c.Binance.WSBaseURL == "" {
		c.Binance.WSBaseURL = "wss://fstream.binance.com"
	}
	if c.Binance.TimeoutSeconds <= 0 {
		c.Binance.TimeoutSeconds = 10
	}
	if c.Binance.HistoryLimit <= 0 {
		c.Binance.HistoryLimit = 500
	}

	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "extgap.db"
	}
	if c.Telegram.TimeoutSeconds <= 0 {
		c.Telegram.TimeoutSeconds = 10
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8090"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Report.OutputDir == "" {
		c.Report.OutputDir = "reports"
	}
	if c.App.StatusIntervalMinutes <= 0 {
		c.App.StatusIntervalMinutes = 30
	}
	return c
}

func (c Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol 不能为空")
	}
	switch c.TimeframeMinutes {
	case 1, 3, 5, 15, 30, 60, 240, 1440:
	default:
		return fmt.Errorf("timeframe_minutes=%d 不是支持的周期", c.TimeframeMinutes)
	}
	switch gap.EntryTiming(c.EntryTiming) {
	case gap.EntryImmediateAtClose, gap.EntryNextBarOpen:
	default:
		return fmt.Errorf("entry_timing=%q 无效，应为 %s 或 %s",
			c.EntryTiming, gap.EntryImmediateAtClose, gap.EntryNextBarOpen)
	}
	if err := c.Grid.Validate(); err != nil {
		return err
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram 已启用但缺少 bot_token / chat_id")
	}
	return nil
}

// Timing returns the parsed entry-timing policy.
func (c Config) Timing() gap.EntryTiming {
	return gap.EntryTiming(c.EntryTiming)
}

// Engine builds the engine configuration slice of this config.
func (c Config) Engine() mm.EngineConfig {
	return mm.EngineConfig{
		Symbol:           c.Symbol,
		TimeframeMinutes: c.TimeframeMinutes,
		Grid:             c.Grid,
		EntryTiming:      c.Timing(),
	}
}

// Load reads and validates a TOML config file. Missing keys fall back to
// defaults, so a minimal file with just a symbol is enough to run.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("解析配置文件失败: %w", err)
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
