// Package gap implements external-gap breakout detection over a stream of
// closed candles. A gap fires when price moves entirely beyond the running
// candidate extreme (highest low / lowest high) accumulated since the
// previous gap; no fixed bar pattern is involved.
package gap

import (
	"time"

	"extgap/internal/logger"
	"extgap/internal/market"
)

type Polarity string

const (
	Bullish Polarity = "bullish"
	Bearish Polarity = "bearish"
)

// EntryTiming selects when downstream execution acts on a detection:
// on the breakout bar's close, or deferred to the next bar's open.
type EntryTiming string

const (
	EntryImmediateAtClose EntryTiming = "immediate"
	EntryNextBarOpen      EntryTiming = "next_bar_open"
)

// Event 一次外部缺口检测结果，生成后不可变。
type Event struct {
	DetectedAt       time.Time `json:"detected_at"`
	Symbol           string    `json:"symbol"`
	Polarity         Polarity  `json:"polarity"`
	GapLevel         float64   `json:"gap_level"`
	OpeningBarTime   time.Time `json:"gap_opening_bar_time"`
	DetectionBarTime time.Time `json:"detection_bar_time"`
	IsFirstGap       bool      `json:"is_first_gap"`
	IsReversal       bool      `json:"is_reversal"`
	SequenceNumber   int       `json:"sequence_number"`
	// WindowSizeBeforePrune 记录剪枝前的窗口大小，便于分析。
	WindowSizeBeforePrune int     `json:"window_size_before_prune"`
	PrevGapLevel          float64 `json:"prev_gap_level"`
	PrevSequenceNumber    int     `json:"prev_sequence_number"`
}

type Config struct {
	Symbol           string
	TimeframeMinutes int
	// MaxWindowBars bounds the candidate window; the oldest bar is evicted
	// on overflow.
	MaxWindowBars int
	Timing        EntryTiming
}

func (c Config) withDefaults() Config {
	out := c
	if out.TimeframeMinutes <= 0 {
		out.TimeframeMinutes = 5
	}
	if out.MaxWindowBars <= 0 {
		out.MaxWindowBars = 500
	}
	if out.Timing == "" {
		out.Timing = EntryImmediateAtClose
	}
	return out
}

type windowBar struct {
	openMs int64
	high   float64
	low    float64
}

// Detector tracks candidate extremes for one symbol. One instance per
// symbol; it is driven by a single caller and holds no locks.
type Detector struct {
	cfg Config

	window []windowBar

	// Candidates cached from the window. bearishCandLow is the highest low
	// (support proxy), bullishCandHigh the lowest high (resistance proxy).
	bearishCandLow    float64
	bearishCandTimeMs int64
	bullishCandHigh   float64
	bullishCandTimeMs int64
	candidatesSeeded  bool

	lastGapLevel    float64
	lastGapPolarity Polarity
	lastGapOpenMs   int64

	sequence     int
	prevSequence int

	initialized bool

	lastOpenMs    int64
	hasLastOpenMs bool
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Timing returns the configured entry-timing policy.
func (d *Detector) Timing() EntryTiming { return d.cfg.Timing }

// Initialized reports whether the first gap has been seen.
func (d *Detector) Initialized() bool { return d.initialized }

// Sequence returns the running sequence number within the current trend.
func (d *Detector) Sequence() int { return d.sequence }

// LastPolarity returns the most recent gap polarity, false before any gap.
func (d *Detector) LastPolarity() (Polarity, bool) {
	if d.lastGapPolarity == "" {
		return "", false
	}
	return d.lastGapPolarity, true
}

// Update processes one closed candle and returns a detection, or nil.
// Misaligned candles are rejected without touching state; a time gap in the
// stream is warned about but never resets the algorithm.
func (d *Detector) Update(c market.Candle) *Event {
	if !c.Aligned(d.cfg.TimeframeMinutes) {
		logger.Warnf("%s: skipping misaligned candle open=%s (want %dm boundary)",
			d.cfg.Symbol, c.OpenTime().Format(time.RFC3339), d.cfg.TimeframeMinutes)
		return nil
	}

	stepMs := int64(d.cfg.TimeframeMinutes) * 60_000
	if d.hasLastOpenMs && c.OpenTimeMs > d.lastOpenMs+stepMs {
		missing := (c.OpenTimeMs - d.lastOpenMs - stepMs) / stepMs
		logger.Warnf("%s: gap in data %s -> %s (%d candles missing)",
			d.cfg.Symbol, time.UnixMilli(d.lastOpenMs).UTC().Format(time.RFC3339),
			c.OpenTime().Format(time.RFC3339), missing)
	}
	d.lastOpenMs = c.OpenTimeMs
	d.hasLastOpenMs = true

	d.pushWindow(windowBar{openMs: c.OpenTimeMs, high: c.High, low: c.Low})

	if !d.initialized {
		return d.detectFirstGap(c)
	}
	return d.detectNextGap(c)
}

func (d *Detector) pushWindow(b windowBar) {
	if len(d.window) == d.cfg.MaxWindowBars {
		d.window = d.window[1:]
	}
	d.window = append(d.window, b)
}

// detectFirstGap scans the whole accumulated window for the first breakout.
func (d *Detector) detectFirstGap(c market.Candle) *Event {
	if len(d.window) < 2 {
		return nil
	}

	maxLow := d.window[0].low
	minHigh := d.window[0].high
	for _, b := range d.window[1:] {
		if b.low > maxLow {
			maxLow = b.low
		}
		if b.high < minHigh {
			minHigh = b.high
		}
	}

	bearish := c.High < maxLow
	bullish := c.Low > minHigh
	if !bearish && !bullish {
		return nil
	}

	polarity := Bullish
	gapLevel := minHigh
	if bearish {
		polarity = Bearish
		gapLevel = maxLow
	}

	// Opening bar: the earliest bar (excluding the breakout bar itself)
	// that set the broken extreme.
	openingMs := d.window[0].openMs
	for _, b := range d.window[:len(d.window)-1] {
		if bearish && b.low == maxLow {
			openingMs = b.openMs
			break
		}
		if bullish && b.high == minHigh {
			openingMs = b.openMs
			break
		}
	}

	d.lastGapLevel = gapLevel
	d.lastGapPolarity = polarity
	d.lastGapOpenMs = openingMs
	d.sequence = 1

	windowBefore := len(d.window)

	// Seed candidates from bars strictly after the opening bar.
	d.bearishCandLow, d.bearishCandTimeMs = c.Low, c.OpenTimeMs
	d.bullishCandHigh, d.bullishCandTimeMs = c.High, c.OpenTimeMs
	for _, b := range d.window {
		if b.openMs <= openingMs || b.openMs == c.OpenTimeMs {
			continue
		}
		if b.low > d.bearishCandLow {
			d.bearishCandLow, d.bearishCandTimeMs = b.low, b.openMs
		}
		if b.high < d.bullishCandHigh {
			d.bullishCandHigh, d.bullishCandTimeMs = b.high, b.openMs
		}
	}
	d.candidatesSeeded = true
	d.initialized = true

	logger.Infof("%s: first %s gap at %.2f, waiting for reversal", d.cfg.Symbol, polarity, gapLevel)

	return &Event{
		DetectedAt:            time.Now().UTC(),
		Symbol:                d.cfg.Symbol,
		Polarity:              polarity,
		GapLevel:              gapLevel,
		OpeningBarTime:        time.UnixMilli(openingMs).UTC(),
		DetectionBarTime:      c.CloseTime(),
		IsFirstGap:            true,
		IsReversal:            false,
		SequenceNumber:        d.sequence,
		WindowSizeBeforePrune: windowBefore,
	}
}

// detectNextGap widens the cached candidates with the incoming bar, tests
// for a breakout, and on detection prunes the window up to the new gap's
// opening bar before recomputing both candidates.
func (d *Detector) detectNextGap(c market.Candle) *Event {
	// Replace only on strictly more extreme values; ties keep the earlier bar.
	if !d.candidatesSeeded || c.Low > d.bearishCandLow {
		d.bearishCandLow, d.bearishCandTimeMs = c.Low, c.OpenTimeMs
	}
	if !d.candidatesSeeded || c.High < d.bullishCandHigh {
		d.bullishCandHigh, d.bullishCandTimeMs = c.High, c.OpenTimeMs
	}
	d.candidatesSeeded = true

	bearish := c.High < d.bearishCandLow
	bullish := c.Low > d.bullishCandHigh
	if !bearish && !bullish {
		return nil
	}

	polarity := Bullish
	gapLevel := d.bullishCandHigh
	openingMs := d.bullishCandTimeMs
	if bearish {
		polarity = Bearish
		gapLevel = d.bearishCandLow
		openingMs = d.bearishCandTimeMs
	}

	isReversal := d.lastGapPolarity != polarity
	prevLevel := d.lastGapLevel
	prevSeq := 0
	if isReversal {
		prevSeq = d.sequence
		d.prevSequence = d.sequence
		d.sequence = 1
		logger.Infof("%s: %s reversal gap at %.2f", d.cfg.Symbol, polarity, gapLevel)
	} else {
		d.sequence++
		logger.Infof("%s: %s gap #%d at %.2f", d.cfg.Symbol, polarity, d.sequence, gapLevel)
	}

	windowBefore := len(d.window)

	d.lastGapLevel = gapLevel
	d.lastGapPolarity = polarity
	d.lastGapOpenMs = openingMs

	// Prune: drop every bar at or before the opening bar.
	keep := d.window[:0]
	for _, b := range d.window {
		if b.openMs > openingMs {
			keep = append(keep, b)
		}
	}
	d.window = keep

	// Recompute candidates from the remaining window; earliest bar wins ties.
	if len(d.window) > 0 {
		d.bearishCandLow, d.bearishCandTimeMs = d.window[0].low, d.window[0].openMs
		d.bullishCandHigh, d.bullishCandTimeMs = d.window[0].high, d.window[0].openMs
		for _, b := range d.window[1:] {
			if b.low > d.bearishCandLow {
				d.bearishCandLow, d.bearishCandTimeMs = b.low, b.openMs
			}
			if b.high < d.bullishCandHigh {
				d.bullishCandHigh, d.bullishCandTimeMs = b.high, b.openMs
			}
		}
	} else {
		d.bearishCandLow, d.bearishCandTimeMs = c.Low, c.OpenTimeMs
		d.bullishCandHigh, d.bullishCandTimeMs = c.High, c.OpenTimeMs
	}

	return &Event{
		DetectedAt:            time.Now().UTC(),
		Symbol:                d.cfg.Symbol,
		Polarity:              polarity,
		GapLevel:              gapLevel,
		OpeningBarTime:        time.UnixMilli(openingMs).UTC(),
		DetectionBarTime:      c.CloseTime(),
		IsFirstGap:            false,
		IsReversal:            isReversal,
		SequenceNumber:        d.sequence,
		WindowSizeBeforePrune: windowBefore,
		PrevGapLevel:          prevLevel,
		PrevSequenceNumber:    prevSeq,
	}
}
