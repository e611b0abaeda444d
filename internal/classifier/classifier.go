// Package classifier turns the raw realtime transport event stream into the
// small event vocabulary the application state machine understands. Its main
// job beyond the mapping table is the silence-timeout heuristic: assistant
// audio arrives in chunks with unreliable "stopped" markers, so the end of
// assistant speech is detected by watching for a sustained gap in audio
// activity rather than trusting any single transport event.
package classifier

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/internal/appstate"
)

// Raw transport event types consumed by the classifier.
const (
	EventSpeechStarted      = "input_audio_buffer.speech_started"
	EventSpeechStopped      = "input_audio_buffer.speech_stopped"
	EventResponseCreated    = "response.created"
	EventOutputAudioStarted = "output_audio_buffer.started"
	EventAudioDelta         = "response.audio.delta"
	EventOutputAudioStopped = "output_audio_buffer.stopped"
	EventOutputAudioCleared = "output_audio_buffer.cleared"
	EventResponseDone       = "response.done"
	EventResponseCancelled  = "response.cancelled"
	EventError              = "error"
)

// DefaultSilenceWindow is how long assistant audio must stay quiet before the
// classifier decides the assistant has finished speaking. Tuned empirically;
// shorter windows make the orb flicker between audio chunks.
const DefaultSilenceWindow = 1200 * time.Millisecond

// Config configures a Classifier.
type Config struct {
	// Dispatch receives the classified events, in order. Required.
	Dispatch func(appstate.Event)
	// SilenceWindow overrides DefaultSilenceWindow, mainly for tests.
	SilenceWindow time.Duration
	Logger        *zap.Logger
	// Now is the clock used for activity timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Classifier maps raw transport events to state machine events. Process must
// be called in event-arrival order; it is safe to call concurrently with the
// silence timer but events within one goroutine are never reordered.
type Classifier struct {
	dispatch func(appstate.Event)
	window   time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	speaking     bool
	lastActivity time.Time
	timer        *time.Timer
	closed       bool
}

// New creates a classifier. It panics if cfg.Dispatch is nil.
func New(cfg Config) *Classifier {
	if cfg.Dispatch == nil {
		panic("classifier: Dispatch is required")
	}
	if cfg.SilenceWindow <= 0 {
		cfg.SilenceWindow = DefaultSilenceWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Classifier{
		dispatch: cfg.Dispatch,
		window:   cfg.SilenceWindow,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
}

// Process classifies one raw transport event. Unmatched event types are inert
// and only logged. Classified events are dispatched after the internal lock is
// released so the dispatch target may call back into the classifier.
func (c *Classifier) Process(eventType string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	var out []appstate.Event
	switch eventType {
	case EventSpeechStarted:
		out = append(out, appstate.UserSpeechStart{})

	case EventSpeechStopped:
		out = append(out, appstate.UserSpeechStop{})

	case EventResponseCreated:
		// A new response supersedes any speech still marked in flight.
		if c.speaking {
			c.speaking = false
			c.cancelTimerLocked()
			out = append(out, appstate.AssistantSpeakingStop{})
		}
		out = append(out, appstate.AssistantThinkingStart{})

	case EventOutputAudioStarted, EventAudioDelta:
		c.lastActivity = c.now()
		if !c.speaking {
			c.speaking = true
			out = append(out, appstate.AssistantSpeakingStart{})
		}
		c.armTimerLocked(c.window)

	case EventOutputAudioStopped, EventOutputAudioCleared:
		// Chunk boundaries fire these mid-utterance. Schedule a silence check
		// without touching the activity timestamp; if more audio arrives the
		// check re-arms itself.
		if c.speaking {
			c.armTimerLocked(c.window)
		}

	case EventResponseDone, EventResponseCancelled:
		out = append(out, c.forceStopLocked()...)
		out = append(out, appstate.AssistantIdle{})

	case EventError:
		out = append(out, c.forceStopLocked()...)
		out = append(out, appstate.AssistantIdle{}, appstate.UserSpeechStop{})

	default:
		c.logger.Debug("unclassified transport event", zap.String("type", eventType))
	}
	c.mu.Unlock()

	for _, ev := range out {
		c.dispatch(ev)
	}
}

// forceStopLocked clears the speaking flag and cancels the silence timer.
// Explicit termination events are authoritative over the silence heuristic.
func (c *Classifier) forceStopLocked() []appstate.Event {
	c.cancelTimerLocked()
	if !c.speaking {
		return nil
	}
	c.speaking = false
	return []appstate.Event{appstate.AssistantSpeakingStop{}}
}

// armTimerLocked schedules the silence check, replacing any pending one so at
// most a single timer exists per speaking episode.
func (c *Classifier) armTimerLocked(d time.Duration) {
	c.cancelTimerLocked()
	c.timer = time.AfterFunc(d, c.onSilenceTimer)
}

func (c *Classifier) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Classifier) onSilenceTimer() {
	c.mu.Lock()
	if c.closed || !c.speaking {
		c.mu.Unlock()
		return
	}
	gap := c.now().Sub(c.lastActivity)
	if gap < c.window {
		// Activity arrived after this timer was armed; check again once the
		// remaining window has elapsed.
		c.armTimerLocked(c.window - gap)
		c.mu.Unlock()
		return
	}
	c.speaking = false
	c.timer = nil
	c.mu.Unlock()

	c.logger.Debug("assistant speech ended by silence timeout", zap.Duration("gap", gap))
	c.dispatch(appstate.AssistantSpeakingStop{})
}

// Close cancels any pending silence timer. Events processed after Close are
// dropped.
func (c *Classifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelTimerLocked()
}
