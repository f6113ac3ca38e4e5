package binance

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"extgap/internal/logger"
	"extgap/internal/market"
)

// klineStream 维护到 /ws/<symbol>@kline_<interval> 的单流连接。
// 断线后按固定间隔重连；只有收盘帧（"x": true）才会被转发。
type klineStream struct {
	url      string
	symbol   string
	interval string
	delay    time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	stats  market.SourceStats

	onConnect    func()
	onDisconnect func(error)
}

func newKlineStream(baseURL, symbol, interval string, delay time.Duration) *klineStream {
	stream := strings.ToLower(symbol) + "@kline_" + interval
	return &klineStream{
		url:      strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/ws/" + stream,
		symbol:   symbol,
		interval: interval,
		delay:    delay,
	}
}

func (c *klineStream) connect() error {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.Dial(c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

// run reads frames until ctx is cancelled or the stream is closed,
// reconnecting in between. Blocking sends apply backpressure to the
// websocket instead of dropping closed candles.
func (c *klineStream) run(ctx context.Context, out chan<- market.CandleEvent) {
	for {
		c.mu.Lock()
		conn := c.conn
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return
		}
		if conn == nil {
			if !c.redial(ctx) {
				return
			}
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.onDisconnect != nil {
				c.onDisconnect(err)
			}
			c.mu.Lock()
			c.stats.Reconnects++
			c.stats.LastError = err.Error()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			continue
		}
		ev, ok := decodeKlineFrame(message)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (c *klineStream) redial(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.delay):
	}
	if err := c.connect(); err != nil {
		logger.Warnf("[binance] WS 重连失败 %s: %v", c.url, err)
		c.mu.Lock()
		c.stats.SubscribeErrors++
		c.stats.LastError = err.Error()
		c.mu.Unlock()
	}
	return true
}

func (c *klineStream) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *klineStream) statsSnapshot() market.SourceStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// decodeKlineFrame parses one raw WS frame and returns the event when it
// carries a closed candle.
func decodeKlineFrame(b []byte) (market.CandleEvent, bool) {
	var frame klineFrame
	if err := json.Unmarshal(b, &frame); err != nil {
		logger.Warnf("[binance] 解码 WS 帧失败: %v", err)
		return market.CandleEvent{}, false
	}
	if frame.EventType != "kline" || !frame.Kline.IsFinal {
		return market.CandleEvent{}, false
	}
	return market.CandleEvent{
		Symbol:   frame.Symbol,
		Interval: frame.Kline.Interval,
		Candle: market.Candle{
			OpenTimeMs:  frame.Kline.StartTime,
			CloseTimeMs: frame.Kline.CloseTime,
			Open:        frame.Kline.OpenPrice.Float(),
			High:        frame.Kline.HighPrice.Float(),
			Low:         frame.Kline.LowPrice.Float(),
			Close:       frame.Kline.ClosePrice.Float(),
		},
	}, true
}

type klineFrame struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime  int64    `json:"t"`
		CloseTime  int64    `json:"T"`
		Interval   string   `json:"i"`
		OpenPrice  strOrNum `json:"o"`
		ClosePrice strOrNum `json:"c"`
		HighPrice  strOrNum `json:"h"`
		LowPrice   strOrNum `json:"l"`
		IsFinal    bool     `json:"x"`
	} `json:"k"`
}

type strOrNum string

func (s *strOrNum) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = strOrNum(v)
		return nil
	}
	*s = strOrNum(string(b))
	return nil
}

func (s strOrNum) Float() float64 {
	f, _ := strconv.ParseFloat(string(s), 64)
	return f
}
