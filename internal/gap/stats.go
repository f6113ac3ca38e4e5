package gap

import "time"

// Statistics accumulates detection and trading counters for periodic
// status notifications. It never discards what it recorded.
type Statistics struct {
	StartTime   time.Time
	BullishGaps int
	BearishGaps int
	Reversals   int

	TotalTrades   int
	WinningTrades int
	LosingTrades  int

	CumulativePnL       float64
	CumulativeVolumeUSD float64

	CurrentTrend    Polarity
	CurrentSequence int

	gapTimestamps []time.Time
	winningPnls   []float64
	losingPnls    []float64
}

func NewStatistics(now time.Time) *Statistics {
	return &Statistics{StartTime: now}
}

func (s *Statistics) RecordGap(ev Event) {
	if ev.Polarity == Bullish {
		s.BullishGaps++
	} else {
		s.BearishGaps++
	}
	if ev.IsReversal {
		s.Reversals++
	}
	s.CurrentTrend = ev.Polarity
	s.CurrentSequence = ev.SequenceNumber
	s.gapTimestamps = append(s.gapTimestamps, ev.DetectionBarTime)
}

// RecordTradeClose folds in one closed trade. realizedPnl carries sign;
// cumulativePnl is the ledger's running total at close time.
func (s *Statistics) RecordTradeClose(status string, realizedPnl, cumulativePnl, sizeUSD float64) {
	s.TotalTrades++
	switch status {
	case "WIN":
		s.WinningTrades++
		s.winningPnls = append(s.winningPnls, realizedPnl)
	case "LOSS":
		s.LosingTrades++
		s.losingPnls = append(s.losingPnls, realizedPnl)
	}
	s.CumulativePnL = cumulativePnl
	s.CumulativeVolumeUSD += sizeUSD
}

func (s *Statistics) WinRate() float64 {
	if s.TotalTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.TotalTrades) * 100
}

// AvgFrequency returns the mean spacing between gaps, false with <2 gaps.
func (s *Statistics) AvgFrequency() (time.Duration, bool) {
	n := len(s.gapTimestamps)
	if n < 2 {
		return 0, false
	}
	total := s.gapTimestamps[n-1].Sub(s.gapTimestamps[0])
	return total / time.Duration(n-1), true
}

func (s *Statistics) AvgWinningTrade() float64 { return mean(s.winningPnls) }
func (s *Statistics) AvgLosingTrade() float64  { return mean(s.losingPnls) }

func (s *Statistics) Uptime(now time.Time) time.Duration { return now.Sub(s.StartTime) }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Snapshot 用于 JSON 状态输出。
type StatisticsSnapshot struct {
	UptimeMinutes       float64  `json:"uptime_minutes"`
	BullishGaps         int      `json:"bullish_gaps"`
	BearishGaps         int      `json:"bearish_gaps"`
	Reversals           int      `json:"reversals"`
	TotalTrades         int      `json:"total_trades"`
	WinningTrades       int      `json:"winning_trades"`
	LosingTrades        int      `json:"losing_trades"`
	CumulativePnL       float64  `json:"cumulative_pnl"`
	CumulativeVolumeUSD float64  `json:"cumulative_volume_usd"`
	CurrentTrend        Polarity `json:"current_trend,omitempty"`
	CurrentSequence     int      `json:"current_sequence"`
	AvgFrequencyMin     float64  `json:"avg_frequency_min"`
	WinRate             float64  `json:"win_rate"`
	AvgWinningTrade     float64  `json:"avg_winning_trade"`
	AvgLosingTrade      float64  `json:"avg_losing_trade"`
}

func (s *Statistics) Snapshot(now time.Time) StatisticsSnapshot {
	freqMin := 0.0
	if d, ok := s.AvgFrequency(); ok {
		freqMin = d.Minutes()
	}
	return StatisticsSnapshot{
		UptimeMinutes:       s.Uptime(now).Minutes(),
		BullishGaps:         s.BullishGaps,
		BearishGaps:         s.BearishGaps,
		Reversals:           s.Reversals,
		TotalTrades:         s.TotalTrades,
		WinningTrades:       s.WinningTrades,
		LosingTrades:        s.LosingTrades,
		CumulativePnL:       s.CumulativePnL,
		CumulativeVolumeUSD: s.CumulativeVolumeUSD,
		CurrentTrend:        s.CurrentTrend,
		CurrentSequence:     s.CurrentSequence,
		AvgFrequencyMin:     freqMin,
		WinRate:             s.WinRate(),
		AvgWinningTrade:     s.AvgWinningTrade(),
		AvgLosingTrade:      s.AvgLosingTrade(),
	}
}
