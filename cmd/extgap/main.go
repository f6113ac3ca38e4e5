// Package main is the entry point of the external-gap grid agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"extgap/internal/app"
	"extgap/internal/config"
	"extgap/internal/gateway/binance"
	"extgap/internal/logger"
	"extgap/internal/mm"
	"extgap/internal/recorder"
	"extgap/internal/replay"
	"extgap/internal/report"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "live":
		err = runLive(os.Args[2:])
	case "replay":
		err = runReplay(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `用法:
  extgap live   -config extgap.toml          实时跟踪并模拟做市
  extgap replay -config extgap.toml [flags]  回放历史并输出报表

replay flags:
  -limit N        回放最近 N 根 K 线 (默认取配置里的 history_limit)
  -html           输出 HTML 报表
  -png            HTML 基础上再生成 PNG 快照 (需要本机 Chrome)`)
}

func setupLogger(cfg config.Config) error {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.File != "" {
		if err := logger.SetFile(cfg.Log.File); err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
	}
	return nil
}

func runLive(args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	configPath := fs.String("config", "extgap.toml", "配置文件路径")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	return a.Run(context.Background())
}

func runReplay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	configPath := fs.String("config", "extgap.toml", "配置文件路径")
	limit := fs.Int("limit", 0, "回放 K 线数量")
	htmlOut := fs.Bool("html", false, "输出 HTML 报表")
	pngOut := fs.Bool("png", false, "输出 PNG 快照")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := setupLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	if *limit <= 0 {
		*limit = cfg.Binance.HistoryLimit
	}
	src := binance.New(binance.Config{
		RESTBaseURL: cfg.Binance.RESTBaseURL,
		WSBaseURL:   cfg.Binance.WSBaseURL,
		HTTPTimeout: time.Duration(cfg.Binance.TimeoutSeconds) * time.Second,
	})
	defer src.Close()

	var sinks []mm.Sink
	if cfg.Store.CSVDir != "" {
		csv, err := recorder.NewCSVRecorder(cfg.Store.CSVDir)
		if err != nil {
			return err
		}
		defer csv.Close()
		sinks = append(sinks, csv)
	}

	ctx := context.Background()
	res, err := replay.RunFromSource(ctx, src, *limit, replay.Options{
		Symbol:           cfg.Symbol,
		TimeframeMinutes: cfg.TimeframeMinutes,
		Grid:             cfg.Grid,
		EntryTiming:      cfg.Timing(),
		Sinks:            sinks,
		CloseAtEnd:       true,
	})
	if err != nil {
		return err
	}

	fmt.Println(report.Summary(res))

	if *htmlOut || *pngOut || cfg.Report.SnapshotPNG {
		path, err := report.WriteHTML(res, cfg.Report.OutputDir)
		if err != nil {
			return err
		}
		fmt.Printf("HTML 报表: %s\n", path)
		if *pngOut || cfg.Report.SnapshotPNG {
			png, err := report.SnapshotPNG(ctx, path)
			if err != nil {
				logger.Warnf("main: PNG 快照失败: %v", err)
			} else {
				fmt.Printf("PNG 快照: %s\n", png)
			}
		}
	}
	return nil
}
