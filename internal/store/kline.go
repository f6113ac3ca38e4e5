package store

import (
	"errors"
	"sync"

	"extgap/internal/market"
)

// CandleCache 按 symbol@interval 缓存最近的 K 线滚动窗口，供状态接口
// 与复盘报表读取。写入方是行情回调，读取方是 HTTP/报表，需要加锁。
type CandleCache struct {
	mu   sync.RWMutex
	max  int
	data map[string][]market.Candle
}

func NewCandleCache(max int) *CandleCache {
	if max <= 0 {
		max = 500
	}
	return &CandleCache{max: max, data: make(map[string][]market.Candle)}
}

func cacheKey(symbol, interval string) string { return symbol + "@" + interval }

// Append 追加一根 K 线并裁剪窗口。
func (c *CandleCache) Append(symbol, interval string, candle market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey(symbol, interval)
	cur := c.data[k]
	if n := len(cur); n > 0 && cur[n-1].OpenTimeMs == candle.OpenTimeMs {
		// 同一根 K 线的更新，覆盖末尾而非重复追加。
		cur[n-1] = candle
		c.data[k] = cur
		return nil
	}
	cur = append(cur, candle)
	if len(cur) > c.max {
		cur = cur[len(cur)-c.max:]
	}
	c.data[k] = cur
	return nil
}

// Seed 批量写入历史 K 线，用于启动时回填窗口。
func (c *CandleCache) Seed(symbol, interval string, candles []market.Candle) error {
	for _, candle := range candles {
		if err := c.Append(symbol, interval, candle); err != nil {
			return err
		}
	}
	return nil
}

// Window returns a copy of the cached window, oldest first.
func (c *CandleCache) Window(symbol, interval string) []market.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur := c.data[cacheKey(symbol, interval)]
	out := make([]market.Candle, len(cur))
	copy(out, cur)
	return out
}

// Last returns the most recent cached candle, or false when empty.
func (c *CandleCache) Last(symbol, interval string) (market.Candle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur := c.data[cacheKey(symbol, interval)]
	if len(cur) == 0 {
		return market.Candle{}, false
	}
	return cur[len(cur)-1], true
}
