package recording

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Errors returned by Recording implementations.
var (
	// ErrClosed is returned when writing to a sealed recording.
	ErrClosed = errors.New("recording is closed")

	// ErrKeyNotFound is returned by GetData when the key is absent.
	ErrKeyNotFound = errors.New("key not found in recording")
)

// Recording holds the data captured for one execution.
//
// Implementations must be safe for concurrent use: deferred results settle
// on other goroutines and write into the recording from there.
type Recording interface {
	// ID returns the unique recording id assigned by the cassette.
	ID() string

	// Category returns the category the recording was created with.
	Category() string

	// SetData stores an entry under key. Fails with ErrClosed once sealed.
	SetData(key string, entry Entry) error

	// GetData returns the entry stored under key.
	// Fails with an error wrapping ErrKeyNotFound when absent.
	GetData(key string) (Entry, error)

	// Keys returns all data keys in insertion order.
	Keys() []string

	// AddMetadata merges md into the metadata; later values override
	// earlier ones with the same name. Fails with ErrClosed once sealed.
	AddMetadata(md map[string]any) error

	// Metadata returns a copy of the metadata map.
	Metadata() map[string]any

	// Close seals the recording against further writes.
	Close()

	// Closed reports whether the recording has been sealed.
	Closed() bool
}

// Memory is the in-memory Recording implementation.
type Memory struct {
	id       string
	category string

	mu       sync.RWMutex
	keys     []string
	data     map[string]Entry
	metadata map[string]any
	closed   bool
}

// Compile-time assertion that Memory implements Recording.
var _ Recording = (*Memory)(nil)

// New creates an empty, open recording.
func New(id, category string) *Memory {
	return &Memory{
		id:       id,
		category: category,
		data:     make(map[string]Entry),
		metadata: make(map[string]any),
	}
}

// ID returns the recording id.
func (m *Memory) ID() string {
	return m.id
}

// Category returns the recording category.
func (m *Memory) Category() string {
	return m.category
}

// SetData stores an entry under key. Re-setting a key keeps its original position.
func (m *Memory) SetData(key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("set %q on %s: %w", key, m.id, ErrClosed)
	}
	if _, exists := m.data[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.data[key] = entry
	return nil
}

// GetData returns the entry stored under key.
func (m *Memory) GetData(key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.data[key]
	if !ok {
		return Entry{}, fmt.Errorf("key '%s': %w", key, ErrKeyNotFound)
	}
	return entry, nil
}

// Keys returns the data keys in insertion order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.keys)
}

// AddMetadata merges md into the recording metadata.
func (m *Memory) AddMetadata(md map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("add metadata on %s: %w", m.id, ErrClosed)
	}
	maps.Copy(m.metadata, md)
	return nil
}

// Metadata returns a copy of the metadata.
func (m *Memory) Metadata() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.metadata)
}

// Close seals the recording. Closing twice is a no-op.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// Closed reports whether the recording is sealed.
func (m *Memory) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
