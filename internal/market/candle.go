package market

import (
	"fmt"
	"time"
)

// Candle 表示一根已收盘的 K 线，核心只消费收盘数据。
type Candle struct {
	OpenTimeMs  int64
	CloseTimeMs int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
}

func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.OpenTimeMs).UTC()
}

func (c Candle) CloseTime() time.Time {
	return time.UnixMilli(c.CloseTimeMs).UTC()
}

// Aligned reports whether the candle's open time sits on a timeframe
// boundary (e.g. 10:00/10:05/10:10 for 5m).
func (c Candle) Aligned(timeframeMinutes int) bool {
	if timeframeMinutes <= 0 {
		return false
	}
	return c.OpenTimeMs%(int64(timeframeMinutes)*60_000) == 0
}

// Interval maps timeframe minutes onto the exchange interval token.
func Interval(timeframeMinutes int) string {
	switch {
	case timeframeMinutes <= 0:
		return ""
	case timeframeMinutes%1440 == 0:
		return fmt.Sprintf("%dd", timeframeMinutes/1440)
	case timeframeMinutes%60 == 0:
		return fmt.Sprintf("%dh", timeframeMinutes/60)
	default:
		return fmt.Sprintf("%dm", timeframeMinutes)
	}
}
