package repositories

import (
	"context"
	"time"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
)

// TranscriptRepository abstracts transcript persistence.
type TranscriptRepository interface {
	// Append stores a new transcript item.
	Append(ctx context.Context, item *entities.TranscriptItem) error
	// UpdateTitle replaces the title (message text) of an existing item.
	UpdateTitle(ctx context.Context, id string, title string) error
	// List returns items in creation order, oldest first.
	List(ctx context.Context, limit int) ([]entities.TranscriptItem, error)
	// DeleteOlderThan removes items created before the cutoff and returns the
	// number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PreferenceStore abstracts persisted client preferences. Load is called once
// at startup (hydration); Save is called on every change.
type PreferenceStore interface {
	Load() (entities.Preferences, error)
	Save(prefs entities.Preferences) error
}

// TodoStore abstracts the todo list maintained through agent tool results.
type TodoStore interface {
	List() ([]entities.TodoItem, error)
	Add(text string) ([]entities.TodoItem, error)
	Toggle(id string) ([]entities.TodoItem, error)
	Replace(items []entities.TodoItem) ([]entities.TodoItem, error)
}
