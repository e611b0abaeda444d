package classifier

import (
	"sync"
	"testing"
	"time"

	"github.com/jonathanpv/chatgpt-voice-ui/internal/appstate"
)

// recorder collects dispatched events for assertion.
type recorder struct {
	mu     sync.Mutex
	events []appstate.Event
}

func (r *recorder) dispatch(ev appstate.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.EventType()
	}
	return out
}

func assertTypes(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func newTestClassifier(t *testing.T, window time.Duration) (*Classifier, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(Config{Dispatch: rec.dispatch, SilenceWindow: window})
	t.Cleanup(c.Close)
	return c, rec
}

func TestUserSpeechMapping(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process(EventSpeechStarted)
	c.Process(EventSpeechStopped)

	assertTypes(t, rec.types(), []string{"user_speech_start", "user_speech_stop"})
}

func TestResponseCreatedStartsThinking(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process(EventResponseCreated)

	assertTypes(t, rec.types(), []string{"assistant_thinking_start"})
}

func TestResponseCreatedInterruptsSpeaking(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process(EventAudioDelta)
	c.Process(EventResponseCreated)

	assertTypes(t, rec.types(), []string{
		"assistant_speaking_start",
		"assistant_speaking_stop",
		"assistant_thinking_start",
	})
}

func TestAudioActivityStartsSpeakingOnce(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process(EventOutputAudioStarted)
	c.Process(EventAudioDelta)
	c.Process(EventAudioDelta)

	assertTypes(t, rec.types(), []string{"assistant_speaking_start"})
}

func TestSilenceTimeoutEmitsSingleStop(t *testing.T) {
	c, rec := newTestClassifier(t, 50*time.Millisecond)

	c.Process(EventAudioDelta)
	time.Sleep(150 * time.Millisecond)

	assertTypes(t, rec.types(), []string{"assistant_speaking_start", "assistant_speaking_stop"})
}

func TestActivityWithinWindowKeepsSpeaking(t *testing.T) {
	c, rec := newTestClassifier(t, 100*time.Millisecond)

	// Deltas spaced well inside the window must not produce any stop.
	for i := 0; i < 5; i++ {
		c.Process(EventAudioDelta)
		time.Sleep(30 * time.Millisecond)
	}

	assertTypes(t, rec.types(), []string{"assistant_speaking_start"})

	// Once activity actually stops, exactly one stop follows.
	time.Sleep(250 * time.Millisecond)
	assertTypes(t, rec.types(), []string{"assistant_speaking_start", "assistant_speaking_stop"})
}

func TestStoppedEventDefersToSilenceWindow(t *testing.T) {
	c, rec := newTestClassifier(t, 100*time.Millisecond)

	c.Process(EventAudioDelta)
	c.Process(EventOutputAudioStopped)

	// The stopped marker alone must not end the episode early; a new chunk
	// right after keeps speech continuous.
	time.Sleep(30 * time.Millisecond)
	c.Process(EventAudioDelta)
	time.Sleep(50 * time.Millisecond)

	assertTypes(t, rec.types(), []string{"assistant_speaking_start"})
}

func TestResponseDoneForcesImmediateStop(t *testing.T) {
	c, rec := newTestClassifier(t, time.Hour)

	c.Process(EventAudioDelta)
	c.Process(EventResponseDone)

	assertTypes(t, rec.types(), []string{
		"assistant_speaking_start",
		"assistant_speaking_stop",
		"assistant_idle",
	})
}

func TestResponseCancelledWithoutSpeech(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process(EventResponseCreated)
	c.Process(EventResponseCancelled)

	assertTypes(t, rec.types(), []string{"assistant_thinking_start", "assistant_idle"})
}

func TestErrorClearsEverything(t *testing.T) {
	c, rec := newTestClassifier(t, time.Hour)

	c.Process(EventSpeechStarted)
	c.Process(EventAudioDelta)
	c.Process(EventError)

	assertTypes(t, rec.types(), []string{
		"user_speech_start",
		"assistant_speaking_start",
		"assistant_speaking_stop",
		"assistant_idle",
		"user_speech_stop",
	})
}

func TestUnknownEventsAreInert(t *testing.T) {
	c, rec := newTestClassifier(t, time.Second)

	c.Process("session.updated")
	c.Process("conversation.item.created")
	c.Process("")

	if got := rec.types(); len(got) != 0 {
		t.Errorf("expected no events for unknown types, got %v", got)
	}
}

func TestNoStopAfterForceStop(t *testing.T) {
	c, rec := newTestClassifier(t, 50*time.Millisecond)

	c.Process(EventAudioDelta)
	c.Process(EventResponseDone)
	time.Sleep(150 * time.Millisecond)

	// The force stop cancelled the silence timer; no second stop may arrive.
	assertTypes(t, rec.types(), []string{
		"assistant_speaking_start",
		"assistant_speaking_stop",
		"assistant_idle",
	})
}

func TestCloseCancelsPendingTimer(t *testing.T) {
	rec := &recorder{}
	c := New(Config{Dispatch: rec.dispatch, SilenceWindow: 50 * time.Millisecond})

	c.Process(EventAudioDelta)
	c.Close()
	time.Sleep(150 * time.Millisecond)

	assertTypes(t, rec.types(), []string{"assistant_speaking_start"})

	c.Process(EventAudioDelta)
	if got := rec.types(); len(got) != 1 {
		t.Errorf("expected events after Close to be dropped, got %v", got)
	}
}
