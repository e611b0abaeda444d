package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
)

// MemoryTranscriptRepository is an in-memory TranscriptRepository used when
// no MongoDB instance is configured and in tests.
type MemoryTranscriptRepository struct {
	mu    sync.RWMutex
	items []entities.TranscriptItem
}

// NewMemoryTranscriptRepository creates an empty in-memory repository.
func NewMemoryTranscriptRepository() repositories.TranscriptRepository {
	return &MemoryTranscriptRepository{}
}

func (r *MemoryTranscriptRepository) Append(ctx context.Context, item *entities.TranscriptItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	r.items = append(r.items, *item)
	return nil
}

func (r *MemoryTranscriptRepository) UpdateTitle(ctx context.Context, id string, title string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].ID == id {
			r.items[i].Title = title
			return nil
		}
	}
	return fmt.Errorf("transcript item %s not found", id)
}

func (r *MemoryTranscriptRepository) List(ctx context.Context, limit int) ([]entities.TranscriptItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := append([]entities.TranscriptItem(nil), r.items...)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *MemoryTranscriptRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.items[:0]
	var removed int64
	for _, item := range r.items {
		if item.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	r.items = kept
	return removed, nil
}
