package entities

import (
	"errors"
	"time"
)

// TranscriptItemType distinguishes chat messages from tool/agent breadcrumbs.
type TranscriptItemType string

const (
	TranscriptMessage    TranscriptItemType = "message"
	TranscriptBreadcrumb TranscriptItemType = "breadcrumb"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TranscriptItem is a single entry in the conversation transcript: either a
// user/assistant message or a breadcrumb carrying structured tool output.
type TranscriptItem struct {
	ID        string             `json:"id" bson:"_id"`
	Type      TranscriptItemType `json:"type" bson:"type"`
	Role      MessageRole        `json:"role,omitempty" bson:"role,omitempty"`
	Title     string             `json:"title" bson:"title"`
	Data      map[string]any     `json:"data,omitempty" bson:"data,omitempty"`
	Hidden    bool               `json:"hidden,omitempty" bson:"hidden,omitempty"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// Validate validates the transcript item data.
func (t *TranscriptItem) Validate() error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.Type != TranscriptMessage && t.Type != TranscriptBreadcrumb {
		return errors.New("invalid transcript item type")
	}
	if t.Type == TranscriptMessage && t.Role != MessageRoleUser && t.Role != MessageRoleAssistant {
		return errors.New("message role must be user or assistant")
	}
	return nil
}

// TodoItem is a single entry in the todo list maintained through agent tool
// results.
type TodoItem struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
