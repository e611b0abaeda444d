// Package logsink stores diagnostic entries received from UI clients in a
// JSON lines file. One line per entry, append-only, so the file can be tailed
// or shipped without parsing state.
package logsink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one stored diagnostic record.
type Entry struct {
	ReceivedAt time.Time       `json:"received_at"`
	Type       string          `json:"type"`
	Entry      json.RawMessage `json:"entry,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

// Sink appends entries to a JSON lines file.
type Sink struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	encoder *json.Encoder
}

// NewSink opens (or creates) the sink file at path.
func NewSink(path string) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Sink{path: path, file: file, encoder: json.NewEncoder(file)}, nil
}

// Append stores one entry, stamping the receive time.
func (s *Sink) Append(entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now()
	}
	return s.encoder.Encode(entry)
}

// ReadLast returns up to n entries, newest first. Malformed lines are
// skipped.
func ReadLast(path string, n int) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, n)
	for i := len(lines) - 1; i >= 0 && len(entries) < n; i-- {
		var e Entry
		if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Path returns the sink file path.
func (s *Sink) Path() string {
	return s.path
}

// Close closes the sink file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}
