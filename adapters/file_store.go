package adapters

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathanpv/chatgpt-voice-ui/domain/entities"
	"github.com/jonathanpv/chatgpt-voice-ui/domain/repositories"
)

// FilePreferenceStore persists client preferences as a JSON file. Load is
// called once at startup; missing files yield defaults.
type FilePreferenceStore struct {
	mu   sync.Mutex
	path string
}

// NewFilePreferenceStore creates a store writing to path.
func NewFilePreferenceStore(path string) (repositories.PreferenceStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create preference directory: %w", err)
	}
	return &FilePreferenceStore{path: path}, nil
}

func (s *FilePreferenceStore) Load() (entities.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return entities.DefaultPreferences(), nil
		}
		return entities.DefaultPreferences(), err
	}

	prefs := entities.DefaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return entities.DefaultPreferences(), fmt.Errorf("parse preferences: %w", err)
	}
	return prefs, nil
}

func (s *FilePreferenceStore) Save(prefs entities.Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONFile(s.path, prefs)
}

// FileTodoStore persists the todo list as a JSON file.
type FileTodoStore struct {
	mu   sync.Mutex
	path string
}

// NewFileTodoStore creates a store writing to path.
func NewFileTodoStore(path string) (repositories.TodoStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create todo directory: %w", err)
	}
	return &FileTodoStore{path: path}, nil
}

func (s *FileTodoStore) List() ([]entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *FileTodoStore) Add(text string) ([]entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	items = append(items, entities.TodoItem{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now(),
	})
	if err := writeJSONFile(s.path, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *FileTodoStore) Toggle(id string) ([]entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i].Completed = !items[i].Completed
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("todo item %s not found", id)
	}
	if err := writeJSONFile(s.path, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *FileTodoStore) Replace(items []entities.TodoItem) ([]entities.TodoItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.New().String()
		}
		if items[i].CreatedAt.IsZero() {
			items[i].CreatedAt = time.Now()
		}
	}
	if err := writeJSONFile(s.path, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *FileTodoStore) loadLocked() ([]entities.TodoItem, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []entities.TodoItem{}, nil
		}
		return nil, err
	}
	items := []entities.TodoItem{}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse todo list: %w", err)
	}
	return items, nil
}

// writeJSONFile writes via a temp file and rename so a crash mid-write never
// leaves a truncated file behind.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
