// Package cassette defines the storage abstraction for recordings and an
// in-memory implementation.
//
// A Cassette creates new recordings, persists completed ones and loads them
// back by id. Backends live in subpackages: sqlite for a durable file store
// and redis for a shared store.
package cassette

import (
	"context"
	"errors"

	"github.com/roach88/tapedeck/internal/recording"
)

// ErrNotFound is returned by GetRecording when no recording has the given id.
var ErrNotFound = errors.New("recording not found")

// Cassette persists and retrieves recordings.
type Cassette interface {
	// CreateNewRecording returns a fresh, empty, open recording with a
	// unique id derived from category.
	CreateNewRecording(category string) recording.Recording

	// GetRecording loads a persisted recording.
	// Returns an error wrapping ErrNotFound for unknown ids.
	GetRecording(ctx context.Context, id string) (recording.Recording, error)

	// SaveRecording closes rec, then persists it. rec is closed even when
	// persisting fails.
	SaveRecording(ctx context.Context, rec recording.Recording) error

	// AbortRecording closes rec without persisting it.
	AbortRecording(rec recording.Recording)
}

// Lister is implemented by cassettes that can enumerate their recordings.
type Lister interface {
	// ListRecordings returns recording ids in save order.
	ListRecordings(ctx context.Context) ([]string, error)
}

// NewRecording creates an open in-memory recording with an id of the form
// "<category>/<generated>".
func NewRecording(gen IDGenerator, category string) *recording.Memory {
	return recording.New(category+"/"+gen.Generate(), category)
}
