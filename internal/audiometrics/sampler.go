package audiometrics

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
)

// Defaults for the sampler geometry and smoothing. These are tuned for the
// orb animation, not for measurement accuracy.
const (
	DefaultBandCount       = 4
	DefaultMaxBin          = 400
	DefaultSignalThreshold = 0.02
	DefaultTimeConstant    = 2 * time.Second
	DefaultGain            = 40.0
	DefaultFrameInterval   = 16 * time.Millisecond
)

// Snapshot is one immutable frame of audio metrics. Readers get the whole
// struct by pointer swap; fields are never mutated after publication.
type Snapshot struct {
	// Bands is the normalized instantaneous magnitude per band, each in [0,1].
	Bands []float64
	// Cumulative is the smoothed slow-drifting energy vector per band.
	Cumulative []float64
	// Level is the mean of Bands.
	Level float64
	// Source is the source the bands were read from this frame.
	Source entities.AudioSource
	At     time.Time
}

// Config configures a Sampler.
type Config struct {
	Mic    MicSource
	Logger *zap.Logger
	// Now is the frame clock. Defaults to time.Now.
	Now func() time.Time

	// BandCount, MaxBin, SignalThreshold, TimeConstant and Gain override the
	// defaults above; zero values select the default.
	BandCount       int
	MaxBin          int
	SignalThreshold float64
	TimeConstant    time.Duration
	Gain            float64
}

// Sampler polls the active analyser sources every frame and publishes the
// latest Snapshot through an atomic cell. Step is cheap and never blocks; the
// write side never triggers any notification because frame-rate writes must
// not drive render cycles.
type Sampler struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	latest atomic.Pointer[Snapshot]

	mu           sync.Mutex
	active       bool
	sourceMode   entities.AudioSource
	micAnalyser  Analyser
	output       Analyser
	outputStream string
	cumulative   []float64
	lastStep     time.Time
}

// NewSampler creates a sampler. The mic source may be nil when no capture
// device exists; the mic side then always reads as silence.
func NewSampler(cfg Config) *Sampler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BandCount <= 0 {
		cfg.BandCount = DefaultBandCount
	}
	if cfg.MaxBin <= 0 {
		cfg.MaxBin = DefaultMaxBin
	}
	if cfg.SignalThreshold <= 0 {
		cfg.SignalThreshold = DefaultSignalThreshold
	}
	if cfg.TimeConstant <= 0 {
		cfg.TimeConstant = DefaultTimeConstant
	}
	if cfg.Gain <= 0 {
		cfg.Gain = DefaultGain
	}
	s := &Sampler{
		cfg:        cfg,
		logger:     cfg.Logger,
		now:        cfg.Now,
		sourceMode: entities.SourceIdle,
		cumulative: make([]float64, cfg.BandCount),
	}
	s.latest.Store(&Snapshot{
		Bands:      make([]float64, cfg.BandCount),
		Cumulative: make([]float64, cfg.BandCount),
		Source:     entities.SourceIdle,
	})
	return s
}

// Latest returns the most recently published snapshot. Safe from any
// goroutine; never nil.
func (s *Sampler) Latest() *Snapshot {
	return s.latest.Load()
}

// SetSourceMode selects which source feeds the bands. Switching away from mic
// releases the capture chain.
func (s *Sampler) SetSourceMode(mode entities.AudioSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceMode == mode {
		return
	}
	s.sourceMode = mode
	if mode == entities.SourceOutput {
		s.releaseMicLocked()
	}
}

// SetActive turns sampling on or off. Deactivating releases the microphone.
func (s *Sampler) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == active {
		return
	}
	s.active = active
	if !active {
		s.releaseMicLocked()
		s.lastStep = time.Time{}
	}
}

// SetOutputStream installs the analyser for the assistant output stream. The
// analyser is cached per stream ID; a new ID replaces the cached one so the
// audio graph is rebuilt only on a real stream change.
func (s *Sampler) SetOutputStream(streamID string, a Analyser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if streamID == s.outputStream && s.output != nil {
		return
	}
	s.outputStream = streamID
	s.output = a
}

// ClearOutput drops the cached output analyser.
func (s *Sampler) ClearOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputStream = ""
	s.output = nil
}

func (s *Sampler) releaseMicLocked() {
	if s.micAnalyser == nil {
		return
	}
	s.micAnalyser = nil
	if s.cfg.Mic != nil {
		s.cfg.Mic.Release()
	}
}

// micLocked lazily acquires the microphone analyser. Denied or absent capture
// reads as silence.
func (s *Sampler) micLocked() Analyser {
	if s.micAnalyser != nil {
		return s.micAnalyser
	}
	if s.cfg.Mic == nil {
		return nil
	}
	a, err := s.cfg.Mic.Acquire()
	if err != nil {
		s.logger.Warn("microphone acquire failed", zap.Error(err))
		return nil
	}
	s.micAnalyser = a
	return a
}

func (s *Sampler) readBands(a Analyser) []float64 {
	if a == nil {
		return make([]float64, s.cfg.BandCount)
	}
	bins, ok := a.FrequencyBins()
	if !ok {
		return make([]float64, s.cfg.BandCount)
	}
	return reduceBands(bins, s.cfg.BandCount, s.cfg.MaxBin)
}

// Step computes and publishes one frame. The first step after activation only
// seeds the clock so the smoothing never sees a bogus elapsed time.
func (s *Sampler) Step() {
	now := s.now()

	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}

	var bands []float64
	source := s.sourceMode
	switch s.sourceMode {
	case entities.SourceMic:
		bands = s.readBands(s.micLocked())
	case entities.SourceOutput:
		bands = s.readBands(s.output)
	default:
		// Defensive fallback: with no explicit source, follow whichever side
		// is actually producing signal above the noise floor. Never acquires
		// capture hardware on its own; an unheld mic reads as silence.
		micBands := s.readBands(s.micAnalyser)
		outBands := s.readBands(s.output)
		micLevel, outLevel := meanLevel(micBands), meanLevel(outBands)
		switch {
		case outLevel > s.cfg.SignalThreshold && outLevel > micLevel:
			bands, source = outBands, entities.SourceOutput
		case micLevel > s.cfg.SignalThreshold:
			bands, source = micBands, entities.SourceMic
		default:
			bands = make([]float64, s.cfg.BandCount)
		}
	}

	var dt float64
	if !s.lastStep.IsZero() {
		dt = now.Sub(s.lastStep).Seconds()
		if dt < 0 {
			dt = 0
		}
	}
	s.lastStep = now

	if dt > 0 {
		k := 1 - math.Exp(-dt/s.cfg.TimeConstant.Seconds())
		for i := range s.cumulative {
			inc := bands[i] * dt * 60 * s.cfg.Gain
			next := s.cumulative[i]
			next = next*(1-k) + (next+inc)*k
			if math.IsNaN(next) || next < 0 {
				next = 0
			}
			s.cumulative[i] = next
		}
	}

	snap := &Snapshot{
		Bands:      bands,
		Cumulative: append([]float64(nil), s.cumulative...),
		Level:      meanLevel(bands),
		Source:     source,
		At:         now,
	}
	s.mu.Unlock()

	s.latest.Store(snap)
}

// Run steps the sampler at the given interval until the context is cancelled.
// A zero interval selects DefaultFrameInterval.
func (s *Sampler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.SetActive(false)
			return
		case <-ticker.C:
			s.Step()
		}
	}
}
