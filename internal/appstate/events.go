package appstate

import "github.com/jonathanpv/chatgpt-voice-ui/domain/entities"

// Event is the interface for all state machine inputs.
type Event interface {
	// EventType returns the event type string for logging.
	EventType() string
}

// ToggleMode flips between chat and orb view.
type ToggleMode struct{}

func (ToggleMode) EventType() string { return "toggle_mode" }

// SetMode sets the view mode explicitly.
type SetMode struct {
	Mode entities.AppMode
}

func (SetMode) EventType() string { return "set_mode" }

// ToggleVoice flips the voice-enabled preference. Disabling voice clears all
// speaking and thinking flags.
type ToggleVoice struct{}

func (ToggleVoice) EventType() string { return "toggle_voice" }

// SetVoiceEnabled sets the voice-enabled preference explicitly.
type SetVoiceEnabled struct {
	Enabled bool
}

func (SetVoiceEnabled) EventType() string { return "set_voice_enabled" }

// SetAudioPlayback sets the local playback preference.
type SetAudioPlayback struct {
	Enabled bool
}

func (SetAudioPlayback) EventType() string { return "set_audio_playback" }

// SetSessionStatus records a connection state change reported by the realtime
// session. Leaving the connected state clears all speaking and thinking flags.
type SetSessionStatus struct {
	Status entities.SessionStatus
}

func (SetSessionStatus) EventType() string { return "set_session_status" }

// UserSpeechStart marks the start of detected user speech.
type UserSpeechStart struct{}

func (UserSpeechStart) EventType() string { return "user_speech_start" }

// UserSpeechStop marks the end of detected user speech.
type UserSpeechStop struct{}

func (UserSpeechStop) EventType() string { return "user_speech_stop" }

// AssistantThinkingStart marks the beginning of a response generation.
type AssistantThinkingStart struct{}

func (AssistantThinkingStart) EventType() string { return "assistant_thinking_start" }

// AssistantSpeakingStart marks the first audio activity of an assistant turn.
// It also clears the thinking flag.
type AssistantSpeakingStart struct{}

func (AssistantSpeakingStart) EventType() string { return "assistant_speaking_start" }

// AssistantSpeakingStop marks the confirmed end of assistant audio.
type AssistantSpeakingStop struct{}

func (AssistantSpeakingStop) EventType() string { return "assistant_speaking_stop" }

// AssistantIdle clears both assistant flags at once. Emitted on response
// completion, cancellation and transport errors.
type AssistantIdle struct{}

func (AssistantIdle) EventType() string { return "assistant_idle" }
