// Package usecase wires the state core, the realtime session and persistence
// into the application-level operations the UI calls.
package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/appstate"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/audiometrics"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/classifier"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/clientlog"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/realtime"
)

// RealtimeSession is the slice of the session adapter the orchestrator uses.
type RealtimeSession interface {
	Connect(ctx context.Context) error
	Disconnect()
	SendEvent(event map[string]any) error
	SendUserText(text string) error
	Interrupt() error
	Mute(muted bool) error
	PushToTalkStart() error
	PushToTalkStop() error
}

// AppConfig configures an AppService.
type AppConfig struct {
	Session     RealtimeSession
	Transcripts repositories.TranscriptRepository
	Preferences repositories.PreferenceStore
	Todos       repositories.TodoStore
	Sampler     *audiometrics.Sampler
	Logger      *zap.Logger
	// Diagnostics, when set, receives connection changes and transport
	// errors as fire-and-forget entries.
	Diagnostics *clientlog.Forwarder

	// SilenceWindow is passed through to the event classifier.
	SilenceWindow time.Duration
	// GreetOnConnect sends a hidden "hi" message after each connect so the
	// assistant opens the conversation.
	GreetOnConnect bool
}

// AppService orchestrates the voice chat application: it owns the state
// machine and classifier, drives the realtime session from user intents, and
// maintains the transcript and todo list from transport events.
type AppService struct {
	machine     *appstate.Machine
	classifier  *classifier.Classifier
	session     RealtimeSession
	transcripts repositories.TranscriptRepository
	prefs       repositories.PreferenceStore
	todos       repositories.TodoStore
	sampler     *audiometrics.Sampler
	diag        *clientlog.Forwarder
	logger      *zap.Logger
	greet       bool

	audioMu     sync.Mutex
	outputAudio *audiometrics.PCMAnalyser
}

// NewAppService hydrates preferences and builds the state core. Session,
// Transcripts, Preferences and Todos are required.
func NewAppService(cfg AppConfig) (*AppService, error) {
	if cfg.Session == nil || cfg.Transcripts == nil || cfg.Preferences == nil || cfg.Todos == nil {
		return nil, fmt.Errorf("usecase: Session, Transcripts, Preferences and Todos are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	prefs, err := cfg.Preferences.Load()
	if err != nil {
		cfg.Logger.Warn("preference hydration failed, using defaults", zap.Error(err))
		prefs = entities.DefaultPreferences()
	}

	svc := &AppService{
		session:     cfg.Session,
		transcripts: cfg.Transcripts,
		prefs:       cfg.Preferences,
		todos:       cfg.Todos,
		sampler:     cfg.Sampler,
		diag:        cfg.Diagnostics,
		logger:      cfg.Logger,
		greet:       cfg.GreetOnConnect,
	}

	svc.machine = appstate.New(appstate.Config{
		Initial: appstate.Context{
			Mode:                 prefs.Mode,
			VoiceEnabled:         prefs.VoiceEnabled,
			AudioPlaybackEnabled: prefs.AudioPlaybackEnabled,
			SessionStatus:        entities.SessionDisconnected,
		},
		Logger: cfg.Logger,
	})
	svc.machine.Subscribe(svc.syncSampler)

	svc.classifier = classifier.New(classifier.Config{
		Dispatch:      func(ev appstate.Event) { svc.machine.Dispatch(ev) },
		SilenceWindow: cfg.SilenceWindow,
		Logger:        cfg.Logger,
	})

	return svc, nil
}

// State returns the committed machine snapshot.
func (s *AppService) State() appstate.Snapshot {
	return s.machine.Snapshot()
}

// Subscribe registers a state change callback.
func (s *AppService) Subscribe(fn func(appstate.Snapshot)) {
	s.machine.Subscribe(fn)
}

// syncSampler keeps the audio sampler aligned with the derived view.
func (s *AppService) syncSampler(snap appstate.Snapshot) {
	if s.sampler == nil {
		return
	}
	s.sampler.SetSourceMode(snap.AudioSource)
	active := snap.Mode == entities.ModeOrb ||
		(snap.VoiceEnabled && snap.SessionStatus == entities.SessionConnected)
	s.sampler.SetActive(active)
}

// Close tears down the classifier and disconnects the session.
func (s *AppService) Close() {
	s.classifier.Close()
	s.session.Disconnect()
}

func (s *AppService) savePreferences(snap appstate.Snapshot) {
	prefs := entities.Preferences{
		VoiceEnabled:         snap.VoiceEnabled,
		AudioPlaybackEnabled: snap.AudioPlaybackEnabled,
		Mode:                 snap.Mode,
	}
	if err := s.prefs.Save(prefs); err != nil {
		s.logger.Warn("preference save failed", zap.Error(err))
	}
}

// ToggleVoice flips the voice preference. Enabling connects the session;
// disabling disconnects it and resets all activity flags.
func (s *AppService) ToggleVoice() appstate.Snapshot {
	snap := s.machine.Dispatch(appstate.ToggleVoice{})
	s.savePreferences(snap)

	if snap.VoiceEnabled {
		// Connect outlives the triggering request.
		go func() {
			if err := s.session.Connect(context.Background()); err != nil {
				s.logger.Warn("session connect failed", zap.Error(err))
			}
		}()
	} else {
		s.session.Disconnect()
	}
	return snap
}

// SetMode switches between chat and orb view.
func (s *AppService) SetMode(mode entities.AppMode) appstate.Snapshot {
	snap := s.machine.Dispatch(appstate.SetMode{Mode: mode})
	s.savePreferences(snap)
	return snap
}

// ToggleMode flips between chat and orb view.
func (s *AppService) ToggleMode() appstate.Snapshot {
	snap := s.machine.Dispatch(appstate.ToggleMode{})
	s.savePreferences(snap)
	return snap
}

// SetAudioPlayback toggles local playback and mirrors the muting state to the
// session so the server stops sending audio nobody hears.
func (s *AppService) SetAudioPlayback(enabled bool) appstate.Snapshot {
	snap := s.machine.Dispatch(appstate.SetAudioPlayback{Enabled: enabled})
	s.savePreferences(snap)

	if err := s.session.Mute(!enabled); err != nil {
		s.logger.Warn("mute sync failed", zap.Error(err))
	}
	return snap
}

// SendUserText interrupts any in-flight response and submits a user message.
// Gated on a connected session.
func (s *AppService) SendUserText(ctx context.Context, text string) error {
	if s.machine.Snapshot().SessionStatus != entities.SessionConnected {
		return fmt.Errorf("session not connected")
	}
	if err := s.session.Interrupt(); err != nil {
		s.logger.Debug("interrupt before send failed", zap.Error(err))
	}
	if err := s.session.SendUserText(text); err != nil {
		return fmt.Errorf("send user text: %w", err)
	}

	s.appendTranscript(ctx, &entities.TranscriptItem{
		ID:    uuid.New().String(),
		Type:  entities.TranscriptMessage,
		Role:  entities.MessageRoleUser,
		Title: text,
	})
	return nil
}

// PushToTalkStart begins a push-to-talk hold.
func (s *AppService) PushToTalkStart() error {
	return s.session.PushToTalkStart()
}

// PushToTalkStop ends a push-to-talk hold and requests a response.
func (s *AppService) PushToTalkStop() error {
	return s.session.PushToTalkStop()
}

// Transcript lists the visible transcript items, oldest first.
func (s *AppService) Transcript(ctx context.Context, limit int) ([]entities.TranscriptItem, error) {
	items, err := s.transcripts.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	visible := items[:0]
	for _, item := range items {
		if item.Hidden {
			continue
		}
		visible = append(visible, item)
	}
	return visible, nil
}

// Todos returns the current todo list.
func (s *AppService) Todos() ([]entities.TodoItem, error) {
	return s.todos.List()
}

// AddTodo appends a todo item.
func (s *AppService) AddTodo(text string) ([]entities.TodoItem, error) {
	return s.todos.Add(text)
}

// ToggleTodo flips a todo item's completion.
func (s *AppService) ToggleTodo(id string) ([]entities.TodoItem, error) {
	return s.todos.Toggle(id)
}

// HandleConnectionChange is wired as the session's OnConnectionChange
// callback. On connect it configures server-side voice detection, re-syncs
// muting with the playback preference, and optionally greets.
func (s *AppService) HandleConnectionChange(status entities.SessionStatus) {
	if s.diag != nil {
		s.diag.Log("connection_change", map[string]any{"status": string(status)})
	}
	snap := s.machine.Dispatch(appstate.SetSessionStatus{Status: status})
	if status != entities.SessionConnected {
		return
	}

	if err := s.session.SendEvent(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.3,
				"prefix_padding_ms":   200,
				"silence_duration_ms": 500,
				"create_response":     true,
			},
		},
	}); err != nil {
		s.logger.Warn("session.update failed", zap.Error(err))
	}

	if !snap.AudioPlaybackEnabled {
		if err := s.session.Mute(true); err != nil {
			s.logger.Warn("mute re-sync failed", zap.Error(err))
		}
	}

	if s.greet {
		if err := s.session.SendUserText("hi"); err != nil {
			s.logger.Warn("greeting failed", zap.Error(err))
		} else {
			s.appendTranscript(context.Background(), &entities.TranscriptItem{
				ID:     uuid.New().String(),
				Type:   entities.TranscriptMessage,
				Role:   entities.MessageRoleUser,
				Title:  "hi",
				Hidden: true,
			})
		}
	}
}

// HandleAgentHandoff records agent switches as breadcrumbs.
func (s *AppService) HandleAgentHandoff(agentName string) {
	s.appendTranscript(context.Background(), &entities.TranscriptItem{
		ID:    uuid.New().String(),
		Type:  entities.TranscriptBreadcrumb,
		Title: fmt.Sprintf("agent handoff: %s", agentName),
	})
}

// HandleOutputAudioStream starts metering a new assistant output stream. The
// analyser is fed from response.audio.delta payloads as they arrive.
func (s *AppService) HandleOutputAudioStream(streamID string) {
	analyser := audiometrics.NewPCMAnalyser()
	s.audioMu.Lock()
	s.outputAudio = analyser
	s.audioMu.Unlock()
	if s.sampler != nil {
		s.sampler.SetOutputStream(streamID, analyser)
	}
}

func (s *AppService) handleOutputAudioDelta(raw json.RawMessage) {
	s.audioMu.Lock()
	analyser := s.outputAudio
	s.audioMu.Unlock()
	if analyser == nil {
		return
	}
	var payload struct {
		Delta string `json:"delta"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Delta == "" {
		return
	}
	pcm, err := base64.StdEncoding.DecodeString(payload.Delta)
	if err != nil {
		s.logger.Debug("undecodable audio delta", zap.Error(err))
		return
	}
	analyser.Push(pcm)
}

// HandleTransportEvent is wired as the session's OnTransportEvent callback:
// every event runs through the classifier, and the transcript-bearing ones
// additionally update persistence.
func (s *AppService) HandleTransportEvent(ev realtime.ServerEvent) {
	s.classifier.Process(ev.Type)

	if ev.Type == "error" && s.diag != nil {
		s.diag.Log("transport_error", json.RawMessage(ev.Raw))
	}

	switch ev.Type {
	case "response.audio.delta":
		s.handleOutputAudioDelta(ev.Raw)
	case "conversation.item.input_audio_transcription.completed":
		s.handleUserTranscription(ev.Raw)
	case "response.done":
		s.handleResponseDone(ev.Raw)
	}
}

func (s *AppService) handleUserTranscription(raw json.RawMessage) {
	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Transcript == "" {
		return
	}
	s.appendTranscript(context.Background(), &entities.TranscriptItem{
		ID:    uuid.New().String(),
		Type:  entities.TranscriptMessage,
		Role:  entities.MessageRoleUser,
		Title: payload.Transcript,
	})
}

// handleResponseDone extracts the assistant message and any tool calls from a
// completed response. Tool calls become breadcrumbs and the todo tools are
// applied to the store.
func (s *AppService) handleResponseDone(raw json.RawMessage) {
	var payload struct {
		Response struct {
			Output []struct {
				Type      string `json:"type"`
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
				Content   []struct {
					Type       string `json:"type"`
					Text       string `json:"text"`
					Transcript string `json:"transcript"`
				} `json:"content"`
			} `json:"output"`
		} `json:"response"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.logger.Debug("unparseable response.done payload", zap.Error(err))
		return
	}

	for _, item := range payload.Response.Output {
		switch item.Type {
		case "message":
			text := ""
			for _, content := range item.Content {
				if content.Text != "" {
					text = content.Text
				} else if content.Transcript != "" {
					text = content.Transcript
				}
			}
			if text == "" {
				continue
			}
			s.appendTranscript(context.Background(), &entities.TranscriptItem{
				ID:    uuid.New().String(),
				Type:  entities.TranscriptMessage,
				Role:  entities.MessageRoleAssistant,
				Title: text,
			})

		case "function_call":
			s.handleToolCall(item.Name, item.Arguments)
		}
	}
}

func (s *AppService) handleToolCall(name, arguments string) {
	args := map[string]any{}
	if arguments != "" {
		if err := json.Unmarshal([]byte(arguments), &args); err != nil {
			s.logger.Debug("unparseable tool arguments",
				zap.String("tool", name),
				zap.Error(err))
			args = map[string]any{}
		}
	}

	s.appendTranscript(context.Background(), &entities.TranscriptItem{
		ID:    uuid.New().String(),
		Type:  entities.TranscriptBreadcrumb,
		Title: fmt.Sprintf("function call result: %s", name),
		Data:  args,
	})

	switch name {
	case "addTodoItem":
		text, _ := args["text"].(string)
		if text == "" {
			return
		}
		if _, err := s.todos.Add(text); err != nil {
			s.logger.Warn("todo add failed", zap.Error(err))
		}
	case "completeTodoItem":
		id, _ := args["id"].(string)
		if id == "" {
			return
		}
		// Without an explicit completion state the tool toggles.
		completed, explicit := args["completed"].(bool)
		if !explicit {
			if _, err := s.todos.Toggle(id); err != nil {
				s.logger.Warn("todo toggle failed", zap.Error(err))
			}
			return
		}
		if err := s.setTodoCompleted(id, completed); err != nil {
			s.logger.Warn("todo completion update failed", zap.Error(err))
		}
	}
}

// setTodoCompleted writes an explicit completion state, unlike Toggle which
// flips whatever is stored.
func (s *AppService) setTodoCompleted(id string, completed bool) error {
	items, err := s.todos.List()
	if err != nil {
		return err
	}
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i].Completed = completed
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("todo item %s not found", id)
	}
	_, err = s.todos.Replace(items)
	return err
}

func (s *AppService) appendTranscript(ctx context.Context, item *entities.TranscriptItem) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.transcripts.Append(ctx, item); err != nil {
		s.logger.Warn("transcript append failed",
			zap.String("item_id", item.ID),
			zap.Error(err))
	}
}
