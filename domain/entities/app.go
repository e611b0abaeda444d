package entities

// SessionStatus represents the connection state of the realtime session.
type SessionStatus string

const (
	SessionDisconnected SessionStatus = "disconnected"
	SessionConnecting   SessionStatus = "connecting"
	SessionConnected    SessionStatus = "connected"
)

// AppMode represents the active view: the chat transcript or the orb visualization.
// It is purely a view toggle and is independent of connection state.
type AppMode string

const (
	ModeChat AppMode = "chat"
	ModeOrb  AppMode = "orb"
)

// VisualState is the single derived state the orb renders.
type VisualState string

const (
	VisualIdle   VisualState = "idle"
	VisualListen VisualState = "listen"
	VisualThink  VisualState = "think"
	VisualSpeak  VisualState = "speak"
)

// AudioSource selects which live audio source feeds the metrics sampler.
type AudioSource string

const (
	SourceMic    AudioSource = "mic"
	SourceOutput AudioSource = "output"
	SourceIdle   AudioSource = "idle"
)

// Phase groups visual states for animation timing. The listen/think/speak
// states collapse into a single active phase so churn within one conversation
// turn does not restart the animation clock.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseActive Phase = "active"
)

// Phase returns the animation phase for a visual state.
func (v VisualState) Phase() Phase {
	switch v {
	case VisualListen, VisualThink, VisualSpeak:
		return PhaseActive
	default:
		return PhaseIdle
	}
}

// Preferences are the client preferences that survive restarts. Transient
// speaking/thinking flags are deliberately not part of this set.
type Preferences struct {
	VoiceEnabled         bool    `json:"voice_enabled"`
	AudioPlaybackEnabled bool    `json:"audio_playback_enabled"`
	Mode                 AppMode `json:"mode"`
}

// DefaultPreferences returns the startup defaults used before hydration.
func DefaultPreferences() Preferences {
	return Preferences{
		VoiceEnabled:         false,
		AudioPlaybackEnabled: true,
		Mode:                 ModeChat,
	}
}
