package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"extgap/internal/logger"
)

// SnapshotPNG 用无头浏览器把 HTML 报表渲染成 PNG，便于直接发到
// Telegram。机器上没有 Chrome 时报错即可，报表本身不受影响。
func SnapshotPNG(ctx context.Context, htmlPath string) (string, error) {
	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return "", err
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.WindowSize(1280, 900),
		)...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	runCtx, cancelRun := context.WithTimeout(tabCtx, 30*time.Second)
	defer cancelRun()

	var buf []byte
	err = chromedp.Run(runCtx,
		chromedp.Navigate("file://"+abs),
		// 等 echarts 完成首帧渲染
		chromedp.Sleep(1500*time.Millisecond),
		chromedp.FullScreenshot(&buf, 90),
	)
	if err != nil {
		return "", fmt.Errorf("渲染 PNG 失败: %w", err)
	}

	pngPath := strings.TrimSuffix(abs, filepath.Ext(abs)) + ".png"
	if err := os.WriteFile(pngPath, buf, 0644); err != nil {
		return "", err
	}
	logger.Infof("report: PNG 快照已生成 %s", pngPath)
	return pngPath, nil
}
