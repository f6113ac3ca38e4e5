package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"extgap/internal/gap"
	"extgap/internal/logger"
	"extgap/internal/mm"
)

// Telegram 通过 Bot API 推送文本消息。零值或 nil 接收者直接丢弃消息，
// 调用方不需要判空。
type Telegram struct {
	token   string
	chatID  string
	client  *http.Client
	baseURL string
}

func NewTelegram(token, chatID string, timeout time.Duration) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		token:   token,
		chatID:  chatID,
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://api.telegram.org",
	}
}

// SendText posts a Markdown message. Errors are returned for the caller to
// ignore; notification failures never matter to the pipeline.
func (t *Telegram) SendText(msg string) error {
	if t == nil || msg == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       msg,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram 发送失败: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram 返回 %s", resp.Status)
	}
	return nil
}

// TradeNotifier 把关键引擎事件转成 Telegram 推送。挂单与成交太密集,
// 只推送 gap 信号与平仓结果。
type TradeNotifier struct {
	tg *Telegram
}

func NewTradeNotifier(tg *Telegram) *TradeNotifier {
	return &TradeNotifier{tg: tg}
}

func (n *TradeNotifier) RecordGap(ev gap.Event) {
	if n == nil || n.tg == nil {
		return
	}
	arrow := "🟢"
	if ev.Polarity == gap.Bearish {
		arrow = "🔴"
	}
	kind := "延续"
	if ev.IsFirstGap {
		kind = "首个"
	} else if ev.IsReversal {
		kind = "反转"
	}
	msg := fmt.Sprintf("%s *%s %s gap* (%s #%d)\n水平: %.4f",
		arrow, ev.Symbol, ev.Polarity, kind, ev.SequenceNumber, ev.GapLevel)
	go n.send(msg)
}

func (n *TradeNotifier) RecordOrder(mm.GridOrder) {}

func (n *TradeNotifier) RecordFill(mm.Fill) {}

func (n *TradeNotifier) RecordTrade(r mm.TradeResult) {
	if n == nil || n.tg == nil {
		return
	}
	mark := "✅"
	if r.Status == mm.Loss {
		mark = "❌"
	}
	msg := fmt.Sprintf("%s *%s 平仓* %s\n%s %.6f @ %.4f → %.4f\n盈亏: %.4f USDT (%s)\n累计: %.4f USDT",
		mark, r.Symbol, r.Status, r.Side, r.SizeQty, r.EntryPrice, r.ExitPrice,
		r.RealizedPnL, r.CloseReason, r.CumulativePnL)
	go n.send(msg)
}

func (n *TradeNotifier) send(msg string) {
	if err := n.tg.SendText(msg); err != nil {
		logger.Warnf("notifier: %v", err)
	}
}
