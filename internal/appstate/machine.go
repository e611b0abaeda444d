// Package appstate implements the central application state machine. It
// reconciles session, voice, mode and speaking flags into the single visual
// state consumed by the orb renderer, along with the audio source selector and
// the animation phase clock.
package appstate

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
)

// Context holds every mutable flag the machine owns. All mutation goes through
// Dispatch; there is no direct external write access.
type Context struct {
	Mode                 entities.AppMode
	VoiceEnabled         bool
	AudioPlaybackEnabled bool
	SessionStatus        entities.SessionStatus
	UserSpeaking         bool
	AssistantThinking    bool
	AssistantSpeaking    bool
}

// View is the derived orb state. It is a pure function of Context.
type View struct {
	VisualState entities.VisualState
	AudioSource entities.AudioSource
	IsListening bool
}

// Snapshot is an immutable copy of the committed machine state.
type Snapshot struct {
	Context
	View
	// PhaseStart is when the current animation phase began. It only moves on
	// an idle/active phase boundary or when the orb view is entered.
	PhaseStart time.Time
}

// Config configures a Machine.
type Config struct {
	Initial Context
	Logger  *zap.Logger
	// Now is the clock used for phase timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Machine is the application state machine. Dispatch is atomic: apply,
// derive and commit happen under one lock, so readers never observe a
// half-updated context.
type Machine struct {
	mu         sync.Mutex
	ctx        Context
	view       View
	phaseStart time.Time
	seq        uint64
	now        func() time.Time
	logger     *zap.Logger
	subs       []func(Snapshot)

	// notifyMu orders subscriber delivery across concurrent dispatches;
	// delivered tracks the newest commit already handed out.
	notifyMu  sync.Mutex
	delivered uint64
}

// New creates a machine with the given initial context.
func New(cfg Config) *Machine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Initial.Mode == "" {
		cfg.Initial.Mode = entities.ModeChat
	}
	if cfg.Initial.SessionStatus == "" {
		cfg.Initial.SessionStatus = entities.SessionDisconnected
	}
	return &Machine{
		ctx:        cfg.Initial,
		view:       derive(cfg.Initial),
		phaseStart: cfg.Now(),
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
}

// apply computes the next context for an event. It is pure: same inputs, same
// output, no side effects.
func apply(c Context, event Event) Context {
	switch ev := event.(type) {
	case ToggleMode:
		if c.Mode == entities.ModeOrb {
			c.Mode = entities.ModeChat
		} else {
			c.Mode = entities.ModeOrb
		}
	case SetMode:
		c.Mode = ev.Mode
	case ToggleVoice:
		c.VoiceEnabled = !c.VoiceEnabled
		if !c.VoiceEnabled {
			c = clearActivity(c)
		}
	case SetVoiceEnabled:
		c.VoiceEnabled = ev.Enabled
		if !ev.Enabled {
			c = clearActivity(c)
		}
	case SetAudioPlayback:
		c.AudioPlaybackEnabled = ev.Enabled
	case SetSessionStatus:
		c.SessionStatus = ev.Status
		if ev.Status != entities.SessionConnected {
			c = clearActivity(c)
		}
	case UserSpeechStart:
		c.UserSpeaking = true
	case UserSpeechStop:
		c.UserSpeaking = false
	case AssistantThinkingStart:
		c.AssistantThinking = true
	case AssistantSpeakingStart:
		c.AssistantSpeaking = true
		c.AssistantThinking = false
	case AssistantSpeakingStop:
		c.AssistantSpeaking = false
	case AssistantIdle:
		c.AssistantThinking = false
		c.AssistantSpeaking = false
	}
	return c
}

func clearActivity(c Context) Context {
	c.UserSpeaking = false
	c.AssistantThinking = false
	c.AssistantSpeaking = false
	return c
}

// derive computes the orb view from a context. The priority order is strict:
// connectivity gates everything, then assistant speech dominates thinking and
// any stale user-speech flag.
func derive(c Context) View {
	orbMode := c.Mode == entities.ModeOrb

	if !c.VoiceEnabled || c.SessionStatus != entities.SessionConnected {
		state := entities.VisualIdle
		if orbMode {
			state = entities.VisualListen
		}
		return View{VisualState: state, AudioSource: entities.SourceIdle, IsListening: orbMode}
	}

	if c.AssistantSpeaking {
		return View{VisualState: entities.VisualSpeak, AudioSource: entities.SourceOutput, IsListening: false}
	}

	if c.AssistantThinking {
		return View{VisualState: entities.VisualThink, AudioSource: entities.SourceIdle, IsListening: false}
	}

	source := entities.SourceIdle
	if c.UserSpeaking {
		source = entities.SourceMic
	}
	return View{VisualState: entities.VisualListen, AudioSource: source, IsListening: !c.UserSpeaking}
}

// Dispatch applies an event, re-derives the view, updates the phase clock and
// commits the result. It returns the committed snapshot.
func (m *Machine) Dispatch(event Event) Snapshot {
	m.mu.Lock()

	prevCtx := m.ctx
	prevView := m.view

	next := apply(prevCtx, event)
	view := derive(next)

	// The phase clock only resets on a true idle/active boundary or when the
	// orb view is entered, so listen/think/speak churn within a turn keeps one
	// continuous animation run.
	modeActivated := prevCtx.Mode != entities.ModeOrb && next.Mode == entities.ModeOrb
	phaseChanged := prevView.VisualState.Phase() != view.VisualState.Phase()
	if modeActivated || phaseChanged {
		m.phaseStart = m.now()
	}

	m.ctx = next
	m.view = view
	m.seq++
	seq := m.seq
	snap := Snapshot{Context: next, View: view, PhaseStart: m.phaseStart}
	changed := next != prevCtx || view != prevView
	var subs []func(Snapshot)
	if changed {
		subs = append(subs, m.subs...)
	}
	m.mu.Unlock()

	if changed || phaseChanged || modeActivated {
		m.logger.Debug("state transition",
			zap.String("event", event.EventType()),
			zap.String("visual_state", string(view.VisualState)),
			zap.String("audio_source", string(view.AudioSource)),
			zap.Bool("is_listening", view.IsListening),
			zap.Bool("phase_reset", modeActivated || phaseChanged),
		)
	}

	if len(subs) > 0 {
		// Deliveries happen in commit order; a commit that lost the race to a
		// newer one is dropped, since subscribers only need the latest state.
		m.notifyMu.Lock()
		if seq > m.delivered {
			m.delivered = seq
			for _, fn := range subs {
				fn(snap)
			}
		}
		m.notifyMu.Unlock()
	}
	return snap
}

// Snapshot returns the latest committed state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Context: m.ctx, View: m.view, PhaseStart: m.phaseStart}
}

// Subscribe registers a callback invoked after every committed change. The
// callback runs outside the machine lock and must not block for long; it is
// meant for UI change notification, not for the per-frame read path.
func (m *Machine) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}
