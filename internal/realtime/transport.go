// Package realtime wraps the upstream realtime agent session: credential
// handshake, WebSocket transport, connect/disconnect lifecycle with a fixed
// retry delay, and the small command surface the orchestrator needs (send
// text, interrupt, mute, push-to-talk).
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from the upstream service.
	maxMessageSize = 1024 * 1024
)

// ServerEvent is one raw event received from the upstream session. Type is
// extracted for classification; Raw carries the full payload for consumers
// that need more than the type (transcripts, tool results).
type ServerEvent struct {
	Type string
	Raw  json.RawMessage
}

// Transport carries JSON events to and from the upstream realtime service.
// Implementations must be safe for one concurrent writer and deliver received
// events in arrival order.
type Transport interface {
	// Connect dials the upstream service with the given ephemeral key. Receive
	// delivers events until the connection drops; it is invoked from a single
	// goroutine owned by the transport.
	Connect(ctx context.Context, ephemeralKey string, receive func(ServerEvent), closed func(error)) error
	// Send marshals and writes one client event.
	Send(event map[string]any) error
	// Close tears the connection down. Idempotent.
	Close() error
}

// WSTransport is the gorilla/websocket Transport implementation.
type WSTransport struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// NewWSTransport creates a transport dialing the given upstream URL.
func NewWSTransport(url string, logger *zap.Logger) *WSTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSTransport{url: url, logger: logger}
}

func (t *WSTransport) Connect(ctx context.Context, ephemeralKey string, receive func(ServerEvent), closed func(error)) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+ephemeralKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, header)
	if err != nil {
		return fmt.Errorf("dial realtime service: %w", err)
	}

	t.mu.Lock()
	if t.conn != nil {
		t.mu.Unlock()
		conn.Close()
		return fmt.Errorf("transport already connected")
	}
	t.conn = conn
	t.done = make(chan struct{})
	t.mu.Unlock()

	go t.readPump(conn, receive, closed)
	go t.pingPump(conn, t.done)
	return nil
}

// readPump delivers upstream events in arrival order until the connection
// drops, then reports the cause through closed.
func (t *WSTransport) readPump(conn *websocket.Conn, receive func(ServerEvent), closed func(error)) {
	defer t.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("realtime connection dropped", zap.Error(err))
			}
			closed(err)
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			t.logger.Debug("unparseable upstream event", zap.Error(err))
			continue
		}
		receive(ServerEvent{Type: envelope.Type, Raw: message})
	}
}

func (t *WSTransport) pingPump(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (t *WSTransport) Send(event map[string]any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("transport not connected")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal client event: %w", err)
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	close(t.done)
	err := t.conn.Close()
	t.conn = nil
	return err
}
