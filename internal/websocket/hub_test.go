package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/appstate"
)

// fakeApp records which operations the hub invoked.
type fakeApp struct {
	machine *appstate.Machine
	calls   []string
	texts   []string
	sendErr error
}

func newFakeApp() *fakeApp {
	return &fakeApp{
		machine: appstate.New(appstate.Config{Initial: appstate.Context{
			Mode:          entities.ModeChat,
			SessionStatus: entities.SessionConnected,
			VoiceEnabled:  true,
		}}),
	}
}

func (f *fakeApp) State() appstate.Snapshot             { return f.machine.Snapshot() }
func (f *fakeApp) Subscribe(fn func(appstate.Snapshot)) { f.machine.Subscribe(fn) }

func (f *fakeApp) ToggleVoice() appstate.Snapshot {
	f.calls = append(f.calls, "toggle_voice")
	return f.machine.Dispatch(appstate.ToggleVoice{})
}

func (f *fakeApp) ToggleMode() appstate.Snapshot {
	f.calls = append(f.calls, "toggle_mode")
	return f.machine.Dispatch(appstate.ToggleMode{})
}

func (f *fakeApp) SetMode(mode entities.AppMode) appstate.Snapshot {
	f.calls = append(f.calls, "set_mode:"+string(mode))
	return f.machine.Dispatch(appstate.SetMode{Mode: mode})
}

func (f *fakeApp) SetAudioPlayback(enabled bool) appstate.Snapshot {
	f.calls = append(f.calls, "set_audio_playback")
	return f.machine.Dispatch(appstate.SetAudioPlayback{Enabled: enabled})
}

func (f *fakeApp) SendUserText(ctx context.Context, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeApp) PushToTalkStart() error { f.calls = append(f.calls, "ptt_start"); return nil }
func (f *fakeApp) PushToTalkStop() error  { f.calls = append(f.calls, "ptt_stop"); return nil }

func (f *fakeApp) AddTodo(text string) ([]entities.TodoItem, error) {
	f.calls = append(f.calls, "add_todo")
	return []entities.TodoItem{{ID: "1", Text: text}}, nil
}

func (f *fakeApp) ToggleTodo(id string) ([]entities.TodoItem, error) {
	f.calls = append(f.calls, "toggle_todo")
	return []entities.TodoItem{{ID: id, Completed: true}}, nil
}

func newTestHub(app AppHandler) *Hub {
	return NewHub(app, nil, zap.NewNop())
}

func TestExecuteRoutesCommands(t *testing.T) {
	enabled := false
	app := newFakeApp()
	hub := newTestHub(app)

	commands := []Command{
		{Type: CommandToggleVoice},
		{Type: CommandToggleMode},
		{Type: CommandSetMode, Mode: "orb"},
		{Type: CommandSetAudioPlayback, Enabled: &enabled},
		{Type: CommandPushToTalkStart},
		{Type: CommandPushToTalkStop},
		{Type: CommandSubmitText, Text: "hello"},
	}
	for _, cmd := range commands {
		if err := hub.execute(cmd); err != nil {
			t.Fatalf("execute %s: %v", cmd.Type, err)
		}
	}

	want := []string{"toggle_voice", "toggle_mode", "set_mode:orb", "set_audio_playback", "ptt_start", "ptt_stop"}
	if len(app.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, app.calls)
	}
	for i := range want {
		if app.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, app.calls)
		}
	}
	if len(app.texts) != 1 || app.texts[0] != "hello" {
		t.Errorf("expected text routed, got %v", app.texts)
	}
}

func TestExecutePropagatesErrors(t *testing.T) {
	app := newFakeApp()
	app.sendErr = errors.New("not connected")
	hub := newTestHub(app)

	if err := hub.execute(Command{Type: CommandSubmitText, Text: "hello"}); err == nil {
		t.Error("expected error propagated")
	}
}

func registerTestClient(hub *Hub) *Client {
	client := &Client{hub: hub, send: make(chan []byte, 16), clientID: "test", logger: zap.NewNop()}
	hub.mu.Lock()
	hub.clients[client.clientID] = client
	hub.mu.Unlock()
	return client
}

func drain(client *Client) []map[string]any {
	var out []map[string]any
	for {
		select {
		case payload := <-client.send:
			var m map[string]any
			json.Unmarshal(payload, &m)
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestStateChangeBroadcast(t *testing.T) {
	app := newFakeApp()
	hub := newTestHub(app)
	client := registerTestClient(hub)

	app.machine.Dispatch(appstate.AssistantThinkingStart{})

	messages := drain(client)
	if len(messages) != 1 {
		t.Fatalf("expected one state message, got %d", len(messages))
	}
	if messages[0]["type"] != "state" {
		t.Errorf("expected state message, got %v", messages[0]["type"])
	}
	if messages[0]["visual_state"] != "think" {
		t.Errorf("expected think, got %v", messages[0]["visual_state"])
	}
}

func TestFrameBroadcastCarriesPhaseStart(t *testing.T) {
	app := newFakeApp()
	hub := newTestHub(app)
	client := registerTestClient(hub)

	hub.broadcastFrame()

	messages := drain(client)
	if len(messages) != 1 {
		t.Fatalf("expected one frame, got %d", len(messages))
	}
	frame := messages[0]
	if frame["type"] != "frame" {
		t.Fatalf("expected frame message, got %v", frame["type"])
	}
	if frame["visual_state"] != "listen" {
		t.Errorf("expected listen, got %v", frame["visual_state"])
	}
	phaseMs, ok := frame["phase_start_ms"].(float64)
	if !ok || phaseMs <= 0 {
		t.Errorf("expected positive phase_start_ms, got %v", frame["phase_start_ms"])
	}
	if time.Since(time.UnixMilli(int64(phaseMs))) > time.Minute {
		t.Errorf("phase_start_ms implausibly old: %v", frame["phase_start_ms"])
	}
}

func TestDetachAfterShutdownDoesNotBlock(t *testing.T) {
	hub := newTestHub(newFakeApp())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	cancel()

	select {
	case <-hub.done:
	case <-time.After(time.Second):
		t.Fatal("hub never shut down")
	}

	client := registerTestClient(hub)
	finished := make(chan struct{})
	go func() {
		hub.detach(client)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after the hub loop exited")
	}
}

func TestTodoCommandBroadcastsList(t *testing.T) {
	app := newFakeApp()
	hub := newTestHub(app)
	client := registerTestClient(hub)

	if err := hub.execute(Command{Type: CommandAddTodo, Text: "buy milk"}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	messages := drain(client)
	if len(messages) != 1 || messages[0]["type"] != "todos" {
		t.Fatalf("expected todos broadcast, got %v", messages)
	}
}
