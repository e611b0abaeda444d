// Package websocket serves the browser UI feed: a per-frame orb state
// broadcast plus the inbound UI command channel.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/appstate"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/audiometrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Commands are small.
	maxMessageSize = 16 * 1024

	// Frame broadcast period, roughly 30 fps.
	frameInterval = 33 * time.Millisecond
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The UI token is already validated before the upgrade.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// AppHandler is the slice of the application orchestrator the hub drives.
type AppHandler interface {
	State() appstate.Snapshot
	Subscribe(fn func(appstate.Snapshot))
	ToggleVoice() appstate.Snapshot
	ToggleMode() appstate.Snapshot
	SetMode(mode entities.AppMode) appstate.Snapshot
	SetAudioPlayback(enabled bool) appstate.Snapshot
	SendUserText(ctx context.Context, text string) error
	PushToTalkStart() error
	PushToTalkStop() error
	AddTodo(text string) ([]entities.TodoItem, error)
	ToggleTodo(id string) ([]entities.TodoItem, error)
}

// Hub maintains the set of active clients, broadcasts orb frames to them and
// routes their commands into the application.
type Hub struct {
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed when Run exits so client teardown never blocks on a dead loop.
	done chan struct{}

	mu sync.RWMutex

	app     AppHandler
	sampler *audiometrics.Sampler
	logger  *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(app AppHandler, sampler *audiometrics.Sampler, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		app:        app,
		sampler:    sampler,
		logger:     logger,
	}
	app.Subscribe(h.broadcastState)
	return h
}

// Run starts the hub's main loop: registration plus the frame ticker.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.clientID] = client
			h.mu.Unlock()
			h.logger.Info("Client registered", zap.String("clientID", client.clientID))
			client.enqueue(h.stateMessage(h.app.State()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.clientID]; ok {
				delete(h.clients, client.clientID)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("Client unregistered", zap.String("clientID", client.clientID))

		case <-ticker.C:
			h.broadcastFrame()
		}
	}
}

// broadcastFrame pushes one orb frame to every client. Skipped when nobody is
// connected.
func (h *Hub) broadcastFrame() {
	h.mu.RLock()
	empty := len(h.clients) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	snap := h.app.State()
	frame := FrameMessage{
		Type:         MessageTypeFrame,
		VisualState:  string(snap.VisualState),
		AudioSource:  string(snap.AudioSource),
		IsListening:  snap.IsListening,
		PhaseStartMs: snap.PhaseStart.UnixMilli(),
	}
	if h.sampler != nil {
		metrics := h.sampler.Latest()
		frame.Bands = metrics.Bands
		frame.Cumulative = metrics.Cumulative
		frame.Level = metrics.Level
	}
	h.broadcast(frame)
}

func (h *Hub) stateMessage(snap appstate.Snapshot) StateMessage {
	return StateMessage{
		Type:                 MessageTypeState,
		SessionStatus:        string(snap.SessionStatus),
		Mode:                 string(snap.Mode),
		VoiceEnabled:         snap.VoiceEnabled,
		AudioPlaybackEnabled: snap.AudioPlaybackEnabled,
		VisualState:          string(snap.VisualState),
	}
}

func (h *Hub) broadcastState(snap appstate.Snapshot) {
	h.broadcast(h.stateMessage(snap))
}

func (h *Hub) broadcast(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Slow consumer; drop the message rather than stall the loop.
		}
	}
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	clientID string

	logger *zap.Logger
}

func (c *Client) enqueue(message any) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// HandleWebSocket upgrades an authenticated request and attaches the client
// to the hub.
func HandleWebSocket(hub *Hub, c echo.Context, clientID string, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: clientID,
		logger:   logger,
	}

	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return nil
}

// detach hands the client back to the hub loop, or drops it outright when the
// loop has already exited.
func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readPump pumps commands from the websocket connection into the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}
		c.processCommand(message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processCommand parses, validates and executes one UI command.
func (c *Client) processCommand(message []byte) {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.logger.Warn("Failed to parse command", zap.Error(err))
		c.enqueue(ErrorMessage{Type: MessageTypeError, Message: "invalid command format"})
		return
	}
	if err := cmd.Validate(); err != nil {
		c.logger.Warn("Invalid command",
			zap.String("type", cmd.Type),
			zap.Error(err))
		c.enqueue(ErrorMessage{Type: MessageTypeError, Message: err.Error()})
		return
	}

	if err := c.hub.execute(cmd); err != nil {
		c.logger.Warn("Command failed",
			zap.String("type", cmd.Type),
			zap.Error(err))
		c.enqueue(ErrorMessage{Type: MessageTypeError, Message: err.Error()})
	}
}

func (h *Hub) execute(cmd Command) error {
	switch cmd.Type {
	case CommandSubmitText:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return h.app.SendUserText(ctx, cmd.Text)

	case CommandToggleVoice:
		h.app.ToggleVoice()

	case CommandToggleMode:
		h.app.ToggleMode()

	case CommandSetMode:
		h.app.SetMode(entities.AppMode(cmd.Mode))

	case CommandSetAudioPlayback:
		h.app.SetAudioPlayback(*cmd.Enabled)

	case CommandPushToTalkStart:
		return h.app.PushToTalkStart()

	case CommandPushToTalkStop:
		return h.app.PushToTalkStop()

	case CommandAddTodo:
		items, err := h.app.AddTodo(cmd.Text)
		if err != nil {
			return err
		}
		h.broadcast(map[string]any{"type": MessageTypeTodos, "todos": items})

	case CommandToggleTodo:
		items, err := h.app.ToggleTodo(cmd.ID)
		if err != nil {
			return err
		}
		h.broadcast(map[string]any{"type": MessageTypeTodos, "todos": items})
	}
	return nil
}
