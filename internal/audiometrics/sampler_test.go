package audiometrics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
)

// fakeAnalyser serves a fixed bin pattern.
type fakeAnalyser struct {
	bins []byte
	ok   bool
}

func (f *fakeAnalyser) FrequencyBins() ([]byte, bool) { return f.bins, f.ok }

func flatBins(n int, v byte) []byte {
	bins := make([]byte, n)
	for i := range bins {
		bins[i] = v
	}
	return bins
}

// fakeMic counts acquire/release calls.
type fakeMic struct {
	analyser Analyser
	err      error
	acquired int
	released int
}

func (m *fakeMic) Acquire() (Analyser, error) {
	m.acquired++
	if m.err != nil {
		return nil, m.err
	}
	return m.analyser, nil
}

func (m *fakeMic) Release() { m.released++ }

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func newActiveSampler(cfg Config) (*Sampler, *stepClock) {
	clock := &stepClock{now: time.Unix(1700000000, 0)}
	cfg.Now = clock.Now
	s := NewSampler(cfg)
	s.SetActive(true)
	return s, clock
}

func TestReduceBandsNormalization(t *testing.T) {
	bands := reduceBands(flatBins(512, 255), 4, 400)
	for i, v := range bands {
		if math.Abs(v-1.0) > 1e-9 {
			t.Errorf("band %d: expected 1.0 for saturated bins, got %f", i, v)
		}
	}

	bands = reduceBands(flatBins(512, 0), 4, 400)
	for i, v := range bands {
		if v != 0 {
			t.Errorf("band %d: expected 0 for silent bins, got %f", i, v)
		}
	}

	bands = reduceBands(nil, 4, 400)
	for i, v := range bands {
		if v != 0 {
			t.Errorf("band %d: expected 0 for missing bins, got %f", i, v)
		}
	}
}

func TestReduceBandsIgnoresHighBins(t *testing.T) {
	// Only bins above the low-frequency window carry energy; all bands must
	// read zero.
	bins := make([]byte, 512)
	for i := 400; i < 512; i++ {
		bins[i] = 255
	}
	bands := reduceBands(bins, 4, 400)
	for i, v := range bands {
		if v != 0 {
			t.Errorf("band %d: expected high-frequency energy ignored, got %f", i, v)
		}
	}
}

func TestBandsStayInRange(t *testing.T) {
	patterns := [][]byte{
		flatBins(400, 255),
		flatBins(400, 128),
		flatBins(3, 255),
		{255},
	}
	for _, bins := range patterns {
		for _, v := range reduceBands(bins, 4, 400) {
			if v < 0 || v > 1 {
				t.Errorf("band out of [0,1]: %f for %d bins", v, len(bins))
			}
		}
	}
}

func TestExplicitOutputSource(t *testing.T) {
	s, _ := newActiveSampler(Config{})
	s.SetOutputStream("stream-1", &fakeAnalyser{bins: flatBins(400, 200), ok: true})
	s.SetSourceMode(entities.SourceOutput)

	s.Step()
	snap := s.Latest()

	if snap.Source != entities.SourceOutput {
		t.Errorf("expected output source, got %s", snap.Source)
	}
	if snap.Level <= 0 {
		t.Errorf("expected positive level, got %f", snap.Level)
	}
}

func TestMicAcquiredLazilyAndReleased(t *testing.T) {
	mic := &fakeMic{analyser: &fakeAnalyser{bins: flatBins(400, 100), ok: true}}
	s, _ := newActiveSampler(Config{Mic: mic})

	s.Step()
	if mic.acquired != 0 {
		t.Errorf("expected no mic acquisition in idle mode without signal need, got %d", mic.acquired)
	}

	s.SetSourceMode(entities.SourceMic)
	s.Step()
	s.Step()
	if mic.acquired != 1 {
		t.Errorf("expected exactly one acquisition across steps, got %d", mic.acquired)
	}

	s.SetSourceMode(entities.SourceOutput)
	if mic.released != 1 {
		t.Errorf("expected release on switch to output, got %d", mic.released)
	}

	s.SetSourceMode(entities.SourceMic)
	s.SetActive(false)
	if mic.released != 1 {
		// Mic was never re-acquired after the switch (no Step ran), so
		// deactivation has nothing to release.
		t.Errorf("unexpected release count %d", mic.released)
	}
	s.SetActive(true)
	s.Step()
	s.SetActive(false)
	if mic.released != 2 {
		t.Errorf("expected release on deactivation, got %d", mic.released)
	}
}

func TestMicDenialYieldsSilence(t *testing.T) {
	mic := &fakeMic{err: errors.New("permission denied")}
	s, _ := newActiveSampler(Config{Mic: mic})
	s.SetSourceMode(entities.SourceMic)

	s.Step()
	snap := s.Latest()

	if snap.Level != 0 {
		t.Errorf("expected silence on mic denial, got level %f", snap.Level)
	}
	for i, v := range snap.Bands {
		if v != 0 {
			t.Errorf("band %d: expected 0, got %f", i, v)
		}
	}
}

func TestIdleArbitrationPicksLouderSource(t *testing.T) {
	mic := &fakeMic{analyser: &fakeAnalyser{bins: flatBins(400, 30), ok: true}}
	s, _ := newActiveSampler(Config{Mic: mic})
	s.SetOutputStream("s", &fakeAnalyser{bins: flatBins(400, 200), ok: true})

	// Hold the mic first; arbitration never acquires it on its own.
	s.SetSourceMode(entities.SourceMic)
	s.Step()
	s.SetSourceMode(entities.SourceIdle)

	s.Step()
	if got := s.Latest().Source; got != entities.SourceOutput {
		t.Errorf("expected arbitration to pick output, got %s", got)
	}

	s.ClearOutput()
	s.Step()
	if got := s.Latest().Source; got != entities.SourceMic {
		t.Errorf("expected arbitration to fall back to mic, got %s", got)
	}
}

func TestIdleArbitrationTiePrefersMic(t *testing.T) {
	mic := &fakeMic{analyser: &fakeAnalyser{bins: flatBins(400, 120), ok: true}}
	s, _ := newActiveSampler(Config{Mic: mic})
	s.SetOutputStream("s", &fakeAnalyser{bins: flatBins(400, 120), ok: true})

	s.SetSourceMode(entities.SourceMic)
	s.Step()
	s.SetSourceMode(entities.SourceIdle)

	s.Step()
	if got := s.Latest().Source; got != entities.SourceMic {
		t.Errorf("expected mic to win an exact tie, got %s", got)
	}
}

func TestIdleArbitrationBelowThresholdIsSilent(t *testing.T) {
	mic := &fakeMic{analyser: &fakeAnalyser{bins: flatBins(400, 2), ok: true}}
	s, _ := newActiveSampler(Config{Mic: mic})
	s.SetOutputStream("s", &fakeAnalyser{bins: flatBins(400, 1), ok: true})

	s.Step()
	snap := s.Latest()

	if snap.Level != 0 {
		t.Errorf("expected zero level below threshold, got %f", snap.Level)
	}
	if snap.Source != entities.SourceIdle {
		t.Errorf("expected idle source, got %s", snap.Source)
	}
}

func TestCumulativeEnergyGrowsAndStaysFinite(t *testing.T) {
	s, clock := newActiveSampler(Config{})
	s.SetOutputStream("s", &fakeAnalyser{bins: flatBins(400, 255), ok: true})
	s.SetSourceMode(entities.SourceOutput)

	s.Step() // seeds the clock
	var prev float64
	for i := 0; i < 100; i++ {
		clock.now = clock.now.Add(16 * time.Millisecond)
		s.Step()
		snap := s.Latest()
		for b, v := range snap.Cumulative {
			if math.IsNaN(v) || v < 0 {
				t.Fatalf("cumulative band %d invalid at step %d: %f", b, i, v)
			}
		}
		cur := snap.Cumulative[0]
		if cur < prev {
			t.Fatalf("cumulative energy decreased under constant signal: %f -> %f", prev, cur)
		}
		prev = cur
	}
	if prev == 0 {
		t.Error("expected cumulative energy to accumulate")
	}
}

func TestCumulativeEnergyDecaysTowardZero(t *testing.T) {
	out := &fakeAnalyser{bins: flatBins(400, 255), ok: true}
	s, clock := newActiveSampler(Config{})
	s.SetOutputStream("s", out)
	s.SetSourceMode(entities.SourceOutput)

	s.Step()
	for i := 0; i < 50; i++ {
		clock.now = clock.now.Add(16 * time.Millisecond)
		s.Step()
	}
	loud := s.Latest().Cumulative[0]

	out.bins = flatBins(400, 0)
	for i := 0; i < 500; i++ {
		clock.now = clock.now.Add(16 * time.Millisecond)
		s.Step()
	}
	quiet := s.Latest().Cumulative[0]

	if quiet >= loud {
		t.Errorf("expected decay after silence: %f -> %f", loud, quiet)
	}
	if math.IsNaN(quiet) || quiet < 0 {
		t.Errorf("decayed value invalid: %f", quiet)
	}
}

func TestOutputStreamCacheInvalidation(t *testing.T) {
	first := &fakeAnalyser{bins: flatBins(400, 50), ok: true}
	second := &fakeAnalyser{bins: flatBins(400, 250), ok: true}
	s, _ := newActiveSampler(Config{})
	s.SetSourceMode(entities.SourceOutput)

	s.SetOutputStream("a", first)
	s.Step()
	levelA := s.Latest().Level

	// Same stream ID keeps the cached analyser.
	s.SetOutputStream("a", second)
	s.Step()
	if got := s.Latest().Level; got != levelA {
		t.Errorf("expected cached analyser for unchanged stream ID, level %f != %f", got, levelA)
	}

	// A new stream ID swaps it.
	s.SetOutputStream("b", second)
	s.Step()
	if got := s.Latest().Level; got <= levelA {
		t.Errorf("expected new analyser after stream change, level %f", got)
	}
}

func TestInactiveSamplerDoesNotPublish(t *testing.T) {
	s := NewSampler(Config{})
	s.SetOutputStream("s", &fakeAnalyser{bins: flatBins(400, 255), ok: true})
	s.SetSourceMode(entities.SourceOutput)

	before := s.Latest()
	s.Step()
	if s.Latest() != before {
		t.Error("expected no snapshot publication while inactive")
	}
}
