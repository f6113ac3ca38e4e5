package gap

import (
	"testing"
	"time"

	"extgap/internal/market"
)

const stepMs = 5 * 60_000

// base sits on a 5m boundary.
const baseMs = int64(1_700_000_100_000)

func bar(i int, high, low float64) market.Candle {
	open := baseMs + int64(i)*stepMs
	return market.Candle{
		OpenTimeMs:  open,
		CloseTimeMs: open + stepMs - 1,
		Open:        (high + low) / 2,
		High:        high,
		Low:         low,
		Close:       (high + low) / 2,
	}
}

func newTestDetector() *Detector {
	return NewDetector(Config{Symbol: "BTCUSDT", TimeframeMinutes: 5})
}

// The walk below drives one detector through a bearish first gap, a bullish
// reversal and a bullish continuation; individual tests reuse prefixes of it.
//
//	b0 h=110 l=100
//	b1 h=115 l=105   window max-low=105, min-high=110
//	b2 h=104 l=95    high<105 -> first gap, bearish, level 105, opened by b1
//	b3 h=103 l=96    widens both candidates
//	b4 h=108 l=104   low>103 -> bullish reversal, level 103, opened by b3
//	b5 h=112 l=109   low>108 -> bullish continuation, level 108, opened by b4
var walk = []market.Candle{
	bar(0, 110, 100),
	bar(1, 115, 105),
	bar(2, 104, 95),
	bar(3, 103, 96),
	bar(4, 108, 104),
	bar(5, 112, 109),
}

func TestDetectorNeedsTwoBars(t *testing.T) {
	d := newTestDetector()
	// A lone bar can never break anything, however extreme.
	if ev := d.Update(bar(0, 1, 0.5)); ev != nil {
		t.Fatalf("unexpected event on first bar: %+v", ev)
	}
	if d.Initialized() {
		t.Fatal("detector should not initialize from one bar")
	}
}

func TestDetectorFirstGap(t *testing.T) {
	d := newTestDetector()
	var ev *Event
	for _, c := range walk[:3] {
		ev = d.Update(c)
	}
	if ev == nil {
		t.Fatal("expected first gap on b2")
	}
	if !ev.IsFirstGap || ev.IsReversal {
		t.Fatalf("first gap flags wrong: %+v", ev)
	}
	if ev.Polarity != Bearish {
		t.Fatalf("polarity = %s, want bearish", ev.Polarity)
	}
	if ev.GapLevel != 105 {
		t.Fatalf("gap level = %v, want 105", ev.GapLevel)
	}
	if ev.SequenceNumber != 1 {
		t.Fatalf("sequence = %d, want 1", ev.SequenceNumber)
	}
	wantOpening := time.UnixMilli(baseMs + 1*stepMs).UTC()
	if !ev.OpeningBarTime.Equal(wantOpening) {
		t.Fatalf("opening bar = %s, want %s", ev.OpeningBarTime, wantOpening)
	}
	if !d.Initialized() {
		t.Fatal("detector should be initialized after first gap")
	}
}

func TestDetectorReversalResetsSequence(t *testing.T) {
	d := newTestDetector()
	var ev *Event
	for _, c := range walk[:5] {
		ev = d.Update(c)
	}
	if ev == nil {
		t.Fatal("expected reversal gap on b4")
	}
	if ev.IsFirstGap || !ev.IsReversal {
		t.Fatalf("reversal flags wrong: %+v", ev)
	}
	if ev.Polarity != Bullish || ev.GapLevel != 103 {
		t.Fatalf("reversal = %s @ %v, want bullish @ 103", ev.Polarity, ev.GapLevel)
	}
	if ev.SequenceNumber != 1 {
		t.Fatalf("sequence after reversal = %d, want 1", ev.SequenceNumber)
	}
	if ev.PrevGapLevel != 105 || ev.PrevSequenceNumber != 1 {
		t.Fatalf("prev gap metadata = (%v, %d), want (105, 1)", ev.PrevGapLevel, ev.PrevSequenceNumber)
	}
	wantOpening := time.UnixMilli(baseMs + 3*stepMs).UTC()
	if !ev.OpeningBarTime.Equal(wantOpening) {
		t.Fatalf("opening bar = %s, want %s", ev.OpeningBarTime, wantOpening)
	}
}

func TestDetectorContinuationIncrementsSequence(t *testing.T) {
	d := newTestDetector()
	var ev *Event
	for _, c := range walk {
		ev = d.Update(c)
	}
	if ev == nil {
		t.Fatal("expected continuation gap on b5")
	}
	if ev.IsReversal || ev.IsFirstGap {
		t.Fatalf("continuation flags wrong: %+v", ev)
	}
	if ev.Polarity != Bullish || ev.SequenceNumber != 2 {
		t.Fatalf("continuation = %s seq %d, want bullish seq 2", ev.Polarity, ev.SequenceNumber)
	}
	if ev.GapLevel != 108 {
		t.Fatalf("continuation level = %v, want 108", ev.GapLevel)
	}
	if ev.PrevSequenceNumber != 0 {
		t.Fatalf("prev sequence on continuation = %d, want 0", ev.PrevSequenceNumber)
	}
}

func TestDetectorSequenceMonotonicWithinTrend(t *testing.T) {
	d := newTestDetector()
	lastSeq := 0
	var lastPolarity Polarity
	for _, c := range walk {
		ev := d.Update(c)
		if ev == nil {
			continue
		}
		if ev.Polarity == lastPolarity {
			if ev.SequenceNumber != lastSeq+1 {
				t.Fatalf("sequence %d after %d within %s trend", ev.SequenceNumber, lastSeq, ev.Polarity)
			}
		} else if !ev.IsFirstGap && ev.SequenceNumber != 1 {
			t.Fatalf("sequence %d on polarity change, want 1", ev.SequenceNumber)
		}
		lastSeq = ev.SequenceNumber
		lastPolarity = ev.Polarity
	}
}

func TestDetectorEqualityNeverBreaks(t *testing.T) {
	d := newTestDetector()
	for _, c := range walk[:3] {
		d.Update(c)
	}
	// After b2 the bullish candidate high is 104; a bar whose low equals a
	// candidate must not fire (strict comparisons only).
	if ev := d.Update(bar(3, 104.5, 104)); ev != nil {
		t.Fatalf("equality triggered a gap: %+v", ev)
	}
}

func TestDetectorIgnoresMisalignedCandle(t *testing.T) {
	d := newTestDetector()
	d.Update(walk[0])
	d.Update(walk[1])

	// Off-boundary candle with absurd extremes must be dropped whole.
	mis := market.Candle{
		OpenTimeMs:  baseMs + 2*stepMs + 1234,
		CloseTimeMs: baseMs + 3*stepMs,
		High:        10_000,
		Low:         1,
		Close:       5_000,
	}
	if ev := d.Update(mis); ev != nil {
		t.Fatalf("misaligned candle produced event: %+v", ev)
	}

	// The walk continues as if the bad candle never existed.
	ev := d.Update(walk[2])
	if ev == nil || !ev.IsFirstGap || ev.GapLevel != 105 {
		t.Fatalf("state disturbed by misaligned candle: %+v", ev)
	}
}

func TestDetectorSurvivesDataGap(t *testing.T) {
	d := newTestDetector()
	d.Update(walk[0])
	d.Update(walk[1])
	// Jump several periods ahead; only a warning, state must carry over.
	ev := d.Update(bar(7, 104, 95))
	if ev == nil || ev.GapLevel != 105 {
		t.Fatalf("data gap corrupted detection: %+v", ev)
	}
}

func TestDetectorConfigDefaults(t *testing.T) {
	d := NewDetector(Config{Symbol: "BTCUSDT"})
	if d.cfg.TimeframeMinutes != 5 || d.cfg.MaxWindowBars != 500 {
		t.Fatalf("defaults not applied: %+v", d.cfg)
	}
	if d.Timing() != EntryImmediateAtClose {
		t.Fatalf("default timing = %s", d.Timing())
	}
}
