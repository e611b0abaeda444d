// Package clientlog forwards diagnostic entries to the log collection
// endpoint. Writes are queued through a single worker so entries never
// interleave out of order, and every failure is swallowed: diagnostics must
// never affect the session.
package clientlog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultQueueSize = 256

// Entry is one diagnostic record posted to the sink.
type Entry struct {
	Type      string `json:"type"`
	Entry     any    `json:"entry,omitempty"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Forwarder posts entries to a log endpoint, best effort, in order.
type Forwarder struct {
	url    string
	client *http.Client
	logger *zap.Logger

	queue chan Entry
	once  sync.Once
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewForwarder creates and starts a forwarder posting to url.
func NewForwarder(url string, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Forwarder{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
		queue:  make(chan Entry, defaultQueueSize),
		done:   make(chan struct{}),
	}
	go f.run()
	return f
}

// Log queues one entry. A full queue drops the entry rather than blocking the
// caller.
func (f *Forwarder) Log(entryType string, entry any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	e := Entry{
		Type:      entryType,
		Entry:     entry,
		Timestamp: time.Now().UnixMilli(),
	}
	select {
	case f.queue <- e:
	default:
		f.logger.Debug("diagnostic queue full, entry dropped", zap.String("type", entryType))
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for entry := range f.queue {
		f.post(entry)
	}
}

func (f *Forwarder) post(entry Entry) {
	body, err := json.Marshal(entry)
	if err != nil {
		return
	}
	resp, err := f.client.Post(f.url, "application/json", bytes.NewReader(body))
	if err != nil {
		f.logger.Debug("diagnostic post failed", zap.Error(err))
		return
	}
	resp.Body.Close()
}

// Close stops accepting entries and waits for the queue to drain.
func (f *Forwarder) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.queue)
	})
	<-f.done
}
