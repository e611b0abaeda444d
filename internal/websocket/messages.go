package websocket

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Server-to-client message types.
const (
	MessageTypeFrame      MessageType = "frame"
	MessageTypeState      MessageType = "state"
	MessageTypeTranscript MessageType = "transcript"
	MessageTypeTodos      MessageType = "todos"
	MessageTypeError      MessageType = "error"
)

// Client-to-server command types.
const (
	CommandSubmitText       = "submit_text"
	CommandToggleVoice      = "toggle_voice"
	CommandToggleMode       = "toggle_mode"
	CommandSetMode          = "set_mode"
	CommandSetAudioPlayback = "set_audio_playback"
	CommandPushToTalkStart  = "push_to_talk_start"
	CommandPushToTalkStop   = "push_to_talk_stop"
	CommandAddTodo          = "add_todo"
	CommandToggleTodo       = "toggle_todo"
)

// FrameMessage is pushed at animation rate while a client is connected. It
// carries everything the orb renderer reads per frame.
type FrameMessage struct {
	Type         MessageType `json:"type"`
	VisualState  string      `json:"visual_state"`
	AudioSource  string      `json:"audio_source"`
	IsListening  bool        `json:"is_listening"`
	PhaseStartMs int64       `json:"phase_start_ms"`
	Bands        []float64   `json:"bands"`
	Cumulative   []float64   `json:"cumulative"`
	Level        float64     `json:"level"`
}

// StateMessage is pushed on every state machine change, for the non-orb UI
// (buttons, connection indicator) that re-renders on change only.
type StateMessage struct {
	Type                 MessageType `json:"type"`
	SessionStatus        string      `json:"session_status"`
	Mode                 string      `json:"mode"`
	VoiceEnabled         bool        `json:"voice_enabled"`
	AudioPlaybackEnabled bool        `json:"audio_playback_enabled"`
	VisualState          string      `json:"visual_state"`
}

// ErrorMessage reports a rejected command.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Command is a UI command received from a client.
type Command struct {
	Type    string `json:"type" validate:"required,oneof=submit_text toggle_voice toggle_mode set_mode set_audio_playback push_to_talk_start push_to_talk_stop add_todo toggle_todo"`
	Text    string `json:"text,omitempty" validate:"max=4096"`
	Mode    string `json:"mode,omitempty" validate:"omitempty,oneof=chat orb"`
	Enabled *bool  `json:"enabled,omitempty"`
	ID      string `json:"id,omitempty"`
}

var validate = validator.New()

// Validate checks the command shape, including per-type required fields.
func (c *Command) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	switch c.Type {
	case CommandSubmitText, CommandAddTodo:
		if c.Text == "" {
			return fmt.Errorf("%s requires text", c.Type)
		}
	case CommandSetMode:
		if c.Mode == "" {
			return fmt.Errorf("set_mode requires mode")
		}
	case CommandSetAudioPlayback:
		if c.Enabled == nil {
			return fmt.Errorf("set_audio_playback requires enabled")
		}
	case CommandToggleTodo:
		if c.ID == "" {
			return fmt.Errorf("toggle_todo requires id")
		}
	}
	return nil
}
