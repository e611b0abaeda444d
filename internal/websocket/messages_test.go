package websocket

import (
	"encoding/json"
	"testing"
)

func TestCommandValidation(t *testing.T) {
	enabled := true
	cases := []struct {
		name    string
		cmd     Command
		wantErr bool
	}{
		{"toggle voice", Command{Type: CommandToggleVoice}, false},
		{"toggle mode", Command{Type: CommandToggleMode}, false},
		{"submit text", Command{Type: CommandSubmitText, Text: "hello"}, false},
		{"submit text empty", Command{Type: CommandSubmitText}, true},
		{"set mode orb", Command{Type: CommandSetMode, Mode: "orb"}, false},
		{"set mode missing", Command{Type: CommandSetMode}, true},
		{"set mode bogus", Command{Type: CommandSetMode, Mode: "fullscreen"}, true},
		{"set playback", Command{Type: CommandSetAudioPlayback, Enabled: &enabled}, false},
		{"set playback missing flag", Command{Type: CommandSetAudioPlayback}, true},
		{"add todo", Command{Type: CommandAddTodo, Text: "buy milk"}, false},
		{"add todo empty", Command{Type: CommandAddTodo}, true},
		{"toggle todo", Command{Type: CommandToggleTodo, ID: "abc"}, false},
		{"toggle todo no id", Command{Type: CommandToggleTodo}, true},
		{"unknown type", Command{Type: "reboot"}, true},
		{"missing type", Command{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.wantErr && err == nil {
				t.Errorf("expected validation error for %+v", tc.cmd)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected validation error for %+v: %v", tc.cmd, err)
			}
		})
	}
}

func TestCommandParsing(t *testing.T) {
	raw := []byte(`{"type":"set_audio_playback","enabled":false}`)
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := cmd.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cmd.Enabled == nil || *cmd.Enabled {
		t.Error("expected enabled=false parsed")
	}
}

func TestFrameMessageShape(t *testing.T) {
	frame := FrameMessage{
		Type:         MessageTypeFrame,
		VisualState:  "speak",
		AudioSource:  "output",
		PhaseStartMs: 1700000000000,
		Bands:        []float64{0.1, 0.2, 0.3, 0.4},
		Cumulative:   []float64{1, 2, 3, 4},
		Level:        0.25,
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"type", "visual_state", "audio_source", "is_listening", "phase_start_ms", "bands", "cumulative", "level"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("frame missing %q field", key)
		}
	}
}
