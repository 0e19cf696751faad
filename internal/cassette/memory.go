package cassette

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/tapedeck/internal/recording"
)

// Memory is an in-process cassette. Saved recordings are kept in their
// encoded form, so a loaded recording never aliases values from the run
// that produced it.
type Memory struct {
	gen    IDGenerator
	logger *slog.Logger

	mu     sync.RWMutex
	docs   map[string][]byte
	order  []string
	lastID string
}

// MemoryOption configures a Memory cassette.
type MemoryOption func(*Memory)

// WithIDGenerator sets the generator used for new recording ids.
func WithIDGenerator(gen IDGenerator) MemoryOption {
	return func(m *Memory) {
		m.gen = gen
	}
}

// WithLogger sets the logger used for save events.
func WithLogger(logger *slog.Logger) MemoryOption {
	return func(m *Memory) {
		m.logger = logger
	}
}

var (
	_ Cassette = (*Memory)(nil)
	_ Lister   = (*Memory)(nil)
)

// NewMemory creates an empty in-memory cassette.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		gen:    UUIDv7Generator{},
		logger: slog.Default(),
		docs:   make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateNewRecording returns a new open recording.
func (m *Memory) CreateNewRecording(category string) recording.Recording {
	return NewRecording(m.gen, category)
}

// GetRecording decodes the saved recording with the given id.
func (m *Memory) GetRecording(_ context.Context, id string) (recording.Recording, error) {
	m.mu.RLock()
	doc, ok := m.docs[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("get recording %s: %w", id, ErrNotFound)
	}
	return recording.Decode(doc)
}

// SaveRecording closes rec, then encodes and stores it.
func (m *Memory) SaveRecording(_ context.Context, rec recording.Recording) error {
	rec.Close()
	doc, err := recording.Encode(rec)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	m.mu.Lock()
	if _, exists := m.docs[rec.ID()]; !exists {
		m.order = append(m.order, rec.ID())
	}
	m.docs[rec.ID()] = doc
	m.lastID = rec.ID()
	m.mu.Unlock()

	m.logger.Debug("recording saved", "id", rec.ID(), "bytes", len(doc))
	return nil
}

// AbortRecording closes rec without storing it.
func (m *Memory) AbortRecording(rec recording.Recording) {
	rec.Close()
	m.logger.Debug("recording aborted", "id", rec.ID())
}

// ListRecordings returns saved ids in save order.
func (m *Memory) ListRecordings(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids, nil
}

// LastRecordingID returns the id of the most recently saved recording,
// or "" if nothing has been saved.
func (m *Memory) LastRecordingID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastID
}

// Document returns the encoded form of a saved recording.
func (m *Memory) Document(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	return doc, ok
}
