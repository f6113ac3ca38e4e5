package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"extgap/internal/gap"
	"extgap/internal/replay"
)

// WriteHTML 输出自包含的 HTML 报表：权益曲线 + 价格与 gap 水平线。
// 返回生成的文件路径。
func WriteHTML(res *replay.Result, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建报表目录失败: %w", err)
	}

	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s %s replay", res.Symbol, res.Interval)
	page.AddCharts(equityChart(res), priceChart(res))

	name := fmt.Sprintf("%s_%s_%s.html", res.Symbol, res.Interval,
		time.Now().UTC().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("渲染报表失败: %w", err)
	}
	return path, nil
}

func equityChart(res *replay.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "累计盈亏 (USDT)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	xs := make([]string, 0, len(res.Equity))
	ys := make([]opts.LineData, 0, len(res.Equity))
	for _, p := range res.Equity {
		xs = append(xs, p.Time.UTC().Format("01-02 15:04"))
		ys = append(ys, opts.LineData{Value: p.CumulativePnL})
	}
	line.SetXAxis(xs).AddSeries("equity", ys,
		charts.WithLineChartOpts(opts.LineChart{Step: "end"}))
	return line
}

func priceChart(res *replay.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s 收盘价与 gap 水平", res.Symbol)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
	)
	xs := make([]string, 0, len(res.Window))
	closes := make([]opts.LineData, 0, len(res.Window))
	for _, c := range res.Window {
		xs = append(xs, c.OpenTime().Format("01-02 15:04"))
		closes = append(closes, opts.LineData{Value: c.Close})
	}
	line.SetXAxis(xs).AddSeries("close", closes)

	// Gap 水平画成阶梯线：每个检测点之后保持水平直到下一个信号。
	levels := gapLevelSeries(res)
	if len(levels) > 0 {
		line.AddSeries("gap level", levels,
			charts.WithLineChartOpts(opts.LineChart{Step: "end"}))
	}
	return line
}

func gapLevelSeries(res *replay.Result) []opts.LineData {
	if len(res.Events) == 0 {
		return nil
	}
	byBar := make(map[int64]gap.Event, len(res.Events))
	for _, ev := range res.Events {
		byBar[ev.DetectionBarTime.UnixMilli()] = ev
	}
	out := make([]opts.LineData, 0, len(res.Window))
	var level interface{}
	for _, c := range res.Window {
		if ev, ok := byBar[c.CloseTime().UnixMilli()]; ok {
			level = ev.GapLevel
		}
		out = append(out, opts.LineData{Value: level})
	}
	return out
}
