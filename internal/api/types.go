package api

import "encoding/json"

// ClientSecret carries the ephemeral upstream credential.
type ClientSecret struct {
	Value string `json:"value"`
}

// SessionResponse is the payload for GET /api/session. The client secret is
// the upstream ephemeral key; the token authenticates the UI's own WebSocket
// connection.
type SessionResponse struct {
	ClientSecret ClientSecret `json:"client_secret"`
	Token        string       `json:"token"`
}

// LogRequest is the payload for POST /api/logs.
type LogRequest struct {
	Type      string          `json:"type" validate:"required"`
	Entry     json.RawMessage `json:"entry,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
