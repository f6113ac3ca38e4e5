package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"extgap/internal/config"
	"extgap/internal/gateway/binance"
	"extgap/internal/httpapi"
	"extgap/internal/logger"
	"extgap/internal/market"
	"extgap/internal/mm"
	"extgap/internal/notifier"
	"extgap/internal/recorder"
	"extgap/internal/store"
)

// App 持有 live 模式的全部组件。引擎只在事件循环这一个 goroutine
// 里被触碰，HTTP 与通知侧消费只读快照。
type App struct {
	cfg    config.Config
	engine *mm.Engine
	source market.Source
	holder *httpapi.StatsHolder
	cache  *store.CandleCache

	events *store.EventStore
	csv    *recorder.CSVRecorder
	tg     *notifier.Telegram

	// sinks 预热结束后才挂到引擎上，避免重启时把历史事件重复落库/重复推送。
	sinks []mm.Sink
}

// New wires every component from the config. Wiring failures abort
// startup; an unreachable exchange does not (the stream reconnects).
func New(cfg config.Config) (*App, error) {
	a := &App{
		cfg:    cfg,
		holder: &httpapi.StatsHolder{},
		cache:  store.NewCandleCache(cfg.Binance.HistoryLimit),
	}

	if cfg.Store.SQLitePath != "" {
		events, err := store.OpenEventStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.events = events
		a.sinks = append(a.sinks, events)
	}
	if cfg.Store.CSVDir != "" {
		csv, err := recorder.NewCSVRecorder(cfg.Store.CSVDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.csv = csv
		a.sinks = append(a.sinks, csv)
	}
	if cfg.Telegram.Enabled {
		a.tg = notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
			time.Duration(cfg.Telegram.TimeoutSeconds)*time.Second)
		a.sinks = append(a.sinks, notifier.NewTradeNotifier(a.tg))
	}

	engine, err := mm.NewEngine(cfg.Engine())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	a.source = binance.New(binance.Config{
		RESTBaseURL: cfg.Binance.RESTBaseURL,
		WSBaseURL:   cfg.Binance.WSBaseURL,
		HTTPTimeout: time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
	})
	return a, nil
}

// Run blocks until SIGINT/SIGTERM or a fatal component error. Shutdown
// closes any open position as SHUTDOWN before resources are released.
func (a *App) Run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := WritePidFile(a.cfg.App.PidFile); err != nil {
		return err
	}
	defer RemovePidFile(a.cfg.App.PidFile)

	interval := market.Interval(a.cfg.TimeframeMinutes)
	if err := a.warmup(ctx, interval); err != nil {
		return err
	}
	// 预热跑完才接入 sink：历史 K 线只热状态，不产生落库与推送。
	a.engine.AttachSinks(a.sinks...)

	events, err := a.source.Subscribe(ctx, a.cfg.Symbol, interval, market.SubscribeOptions{
		OnConnect: func() {
			logger.Infof("app: WS 已连接 %s@%s", a.cfg.Symbol, interval)
			_ = a.tg.SendText(fmt.Sprintf("*extgap 启动* ✅\n%s %s 订阅就绪", a.cfg.Symbol, interval))
		},
		OnDisconnect: func(err error) {
			logger.Warnf("app: WS 断开: %v", err)
		},
	})
	if err != nil {
		return fmt.Errorf("订阅行情失败: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.eventLoop(gctx, events) })
	if a.cfg.HTTP.Enabled {
		srv, err := httpapi.NewServer(httpapi.Config{
			Addr:    a.cfg.HTTP.Addr,
			Holder:  a.holder,
			Source:  a.source,
			Store:   a.events,
			Candles: a.cache,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error { return a.statusLoop(gctx) })

	err = g.Wait()
	a.shutdown()
	return err
}

// warmup replays recent history so the detector window and ATR are hot
// before the first live candle.
func (a *App) warmup(ctx context.Context, interval string) error {
	history, err := a.source.FetchHistory(ctx, a.cfg.Symbol, interval, a.cfg.Binance.HistoryLimit)
	if err != nil {
		return fmt.Errorf("拉取历史失败: %w", err)
	}
	// 末根可能尚未收盘，丢掉避免把半根 K 线喂进核心。
	if n := len(history); n > 0 && history[n-1].CloseTimeMs > time.Now().UnixMilli() {
		history = history[:n-1]
	}
	for _, c := range history {
		a.engine.ProcessCandle(c)
		_ = a.cache.Append(a.cfg.Symbol, interval, c)
	}
	a.holder.Publish(a.engine.Stats())
	logger.Infof("app: 预热完成，%d 根历史 K 线", len(history))
	return nil
}

func (a *App) eventLoop(ctx context.Context, events <-chan market.CandleEvent) error {
	interval := market.Interval(a.cfg.TimeframeMinutes)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("行情通道已关闭")
			}
			a.engine.ProcessCandle(ev.Candle)
			_ = a.cache.Append(a.cfg.Symbol, interval, ev.Candle)
			a.holder.Publish(a.engine.Stats())
		}
	}
}

// statusLoop logs a one-line status periodically. It reads the published
// snapshot, never the engine itself.
func (a *App) statusLoop(ctx context.Context) error {
	interval := time.Duration(a.cfg.App.StatusIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats, ok := a.holder.Snapshot()
			if !ok {
				continue
			}
			logger.Infof("app: %s | signal=%s orders=%d trades=%d pnl=%.4f",
				stats.Symbol, stats.Signal, stats.State.ActiveOrders,
				stats.Ledger.TotalTrades, stats.Ledger.CumulativePnL)
		}
	}
}

func (a *App) shutdown() {
	if r := a.engine.CloseManual(mm.CloseShutdown); r != nil {
		logger.Infof("app: 停机平仓 %s %.4f USDT", r.Status, r.RealizedPnL)
	}
	_ = a.tg.SendText("*extgap 停机* 🛑")
	a.Close()
}

// Close releases held resources. Safe to call more than once.
func (a *App) Close() {
	if a.source != nil {
		a.source.Close()
		a.source = nil
	}
	if a.csv != nil {
		a.csv.Close()
		a.csv = nil
	}
	if a.events != nil {
		a.events.Close()
		a.events = nil
	}
}
