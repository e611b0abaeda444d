package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
)

// DefaultRetryDelay is the fixed backoff between failed connect attempts.
const DefaultRetryDelay = 5000 * time.Millisecond

// Callbacks is the surface the session reports into. Nil members are skipped.
// All callbacks run on session-owned goroutines and must not block for long.
type Callbacks struct {
	OnConnectionChange  func(entities.SessionStatus)
	OnTransportEvent    func(ServerEvent)
	OnAgentHandoff      func(agentName string)
	OnOutputAudioStream func(streamID string)
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Transport   Transport
	Credentials CredentialSource
	Callbacks   Callbacks
	Logger      *zap.Logger
	// RetryDelay overrides DefaultRetryDelay, mainly for tests.
	RetryDelay time.Duration
}

// Session owns the connection lifecycle to the upstream realtime service.
// Connect failures and unexpected drops schedule a single retry after a fixed
// delay; a connect attempt while one is already in flight is dropped.
type Session struct {
	transport Transport
	creds     CredentialSource
	callbacks Callbacks
	logger    *zap.Logger
	retry     time.Duration

	mu            sync.Mutex
	status        entities.SessionStatus
	connecting    bool
	wantConnected bool
	muted         bool
	retryTimer    *time.Timer
}

// NewSession creates a session adapter. Transport and Credentials are
// required.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Transport == nil || cfg.Credentials == nil {
		panic("realtime: Transport and Credentials are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Session{
		transport: cfg.Transport,
		creds:     cfg.Credentials,
		callbacks: cfg.Callbacks,
		logger:    cfg.Logger,
		retry:     cfg.RetryDelay,
		status:    entities.SessionDisconnected,
	}
}

// SetCallbacks installs the callback surface. Must be called before Connect;
// the orchestrator is constructed after the session, so callbacks cannot
// always be supplied at construction time.
func (s *Session) SetCallbacks(cb Callbacks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = cb
}

// Status returns the current connection status.
func (s *Session) Status() entities.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status entities.SessionStatus) {
	s.mu.Lock()
	if s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.mu.Unlock()

	s.logger.Info("session status changed", zap.String("status", string(status)))
	if s.callbacks.OnConnectionChange != nil {
		s.callbacks.OnConnectionChange(status)
	}
}

// Connect fetches an ephemeral key and dials the upstream service. A second
// call while an attempt is outstanding or the session is connected is a
// no-op. Failures transition to disconnected and schedule one retry.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting || s.status == entities.SessionConnected {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.wantConnected = true
	s.cancelRetryLocked()
	s.mu.Unlock()

	s.setStatus(entities.SessionConnecting)

	key, err := s.creds.EphemeralKey(ctx)
	if err != nil {
		s.connectFailed(fmt.Errorf("ephemeral key: %w", err))
		return err
	}

	// Disconnect may have been called while the fetch was outstanding.
	s.mu.Lock()
	if !s.wantConnected {
		s.connecting = false
		s.mu.Unlock()
		s.setStatus(entities.SessionDisconnected)
		return nil
	}
	s.mu.Unlock()

	err = s.transport.Connect(ctx, key, s.handleEvent, s.handleClosed)
	if err != nil {
		s.connectFailed(fmt.Errorf("transport connect: %w", err))
		return err
	}

	s.mu.Lock()
	s.connecting = false
	abandoned := !s.wantConnected
	s.mu.Unlock()
	if abandoned {
		// Disconnect won the race against the dial. Tear the fresh
		// connection down instead of committing it.
		s.transport.Close()
		s.setStatus(entities.SessionDisconnected)
		return nil
	}
	s.setStatus(entities.SessionConnected)
	return nil
}

func (s *Session) connectFailed(err error) {
	s.logger.Warn("connect attempt failed", zap.Error(err))
	s.mu.Lock()
	s.connecting = false
	s.scheduleRetryLocked()
	s.mu.Unlock()
	s.setStatus(entities.SessionDisconnected)
}

// scheduleRetryLocked arms the single retry timer. An already pending retry
// is left in place.
func (s *Session) scheduleRetryLocked() {
	if !s.wantConnected || s.retryTimer != nil {
		return
	}
	s.retryTimer = time.AfterFunc(s.retry, func() {
		s.mu.Lock()
		s.retryTimer = nil
		want := s.wantConnected
		s.mu.Unlock()
		if want {
			s.Connect(context.Background())
		}
	})
}

func (s *Session) cancelRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// Disconnect tears the session down and cancels any pending retry.
// Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.wantConnected = false
	s.cancelRetryLocked()
	s.mu.Unlock()

	s.transport.Close()
	s.setStatus(entities.SessionDisconnected)
}

// handleClosed runs when the transport drops. An unwanted drop schedules a
// reconnect with the same fixed delay as a failed connect.
func (s *Session) handleClosed(err error) {
	s.mu.Lock()
	want := s.wantConnected
	if want {
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	if want && err != nil {
		s.logger.Warn("session dropped, reconnect scheduled", zap.Error(err))
	}
	s.setStatus(entities.SessionDisconnected)
}

// handleEvent forwards every upstream event and additionally surfaces the two
// side-channel callbacks the orchestrator subscribes to.
func (s *Session) handleEvent(ev ServerEvent) {
	switch ev.Type {
	case "agent_handoff":
		var payload struct {
			AgentName string `json:"agent_name"`
		}
		if err := json.Unmarshal(ev.Raw, &payload); err == nil && payload.AgentName != "" {
			if s.callbacks.OnAgentHandoff != nil {
				s.callbacks.OnAgentHandoff(payload.AgentName)
			}
		}
	case "output_audio_buffer.started":
		var payload struct {
			ResponseID string `json:"response_id"`
		}
		if err := json.Unmarshal(ev.Raw, &payload); err == nil && payload.ResponseID != "" {
			if s.callbacks.OnOutputAudioStream != nil {
				s.callbacks.OnOutputAudioStream(payload.ResponseID)
			}
		}
	}

	if s.callbacks.OnTransportEvent != nil {
		s.callbacks.OnTransportEvent(ev)
	}
}

// SendEvent writes one raw client event. Requires a connected session.
func (s *Session) SendEvent(event map[string]any) error {
	if s.Status() != entities.SessionConnected {
		return fmt.Errorf("session not connected")
	}
	return s.transport.Send(event)
}

// SendUserText submits a user text message and asks for a response.
func (s *Session) SendUserText(text string) error {
	if err := s.SendEvent(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"id":   uuid.New().String(),
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}); err != nil {
		return err
	}
	return s.SendEvent(map[string]any{"type": "response.create"})
}

// Interrupt cancels the in-flight assistant response.
func (s *Session) Interrupt() error {
	return s.SendEvent(map[string]any{"type": "response.cancel"})
}

// Mute toggles server-side output audio muting, independent of any local
// playback preference.
func (s *Session) Mute(muted bool) error {
	s.mu.Lock()
	s.muted = muted
	connected := s.status == entities.SessionConnected
	s.mu.Unlock()
	if !connected {
		return nil
	}
	return s.transport.Send(map[string]any{
		"type":    "session.update",
		"session": map[string]any{"output_audio_muted": muted},
	})
}

// Muted reports the last requested mute state.
func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// PushToTalkStart clears any buffered input audio at the start of a
// push-to-talk hold.
func (s *Session) PushToTalkStart() error {
	return s.SendEvent(map[string]any{"type": "input_audio_buffer.clear"})
}

// PushToTalkStop commits the held audio and asks for a response.
func (s *Session) PushToTalkStop() error {
	if err := s.SendEvent(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
		return err
	}
	return s.SendEvent(map[string]any{"type": "response.create"})
}
