package recording

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/tapedeck/internal/canon"
)

// document is the persisted form of a recording.
type document struct {
	ID       string          `json:"id"`
	Category string          `json:"category,omitempty"`
	Entries  []entryDocument `json:"entries"`
	Metadata map[string]any  `json:"metadata"`
}

type entryDocument struct {
	Key        string `json:"key"`
	Kind       Kind   `json:"kind"`
	Value      any    `json:"value"`
	Structured bool   `json:"structured,omitempty"`
	Deferred   bool   `json:"deferred"`
}

// Encode serializes a recording to canonical JSON. Strings and keys are
// stored exactly as recorded.
func Encode(rec Recording) ([]byte, error) {
	keys := rec.Keys()
	doc := document{
		ID:       rec.ID(),
		Category: rec.Category(),
		Entries:  make([]entryDocument, 0, len(keys)),
		Metadata: rec.Metadata(),
	}

	for _, key := range keys {
		entry, err := rec.GetData(key)
		if err != nil {
			return nil, fmt.Errorf("encode recording %s: %w", rec.ID(), err)
		}
		doc.Entries = append(doc.Entries, entryDocument{
			Key:        key,
			Kind:       entry.Kind,
			Value:      entry.Value,
			Structured: entry.Structured,
			Deferred:   entry.Deferred,
		})
	}

	data, err := canon.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encode recording %s: %w", rec.ID(), err)
	}
	return data, nil
}

// Decode parses a persisted recording. The returned recording is sealed.
func Decode(data []byte) (*Memory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if doc.ID == "" {
		return nil, fmt.Errorf("decode recording: missing id")
	}

	rec := New(doc.ID, doc.Category)
	for i, e := range doc.Entries {
		if e.Kind != KindData && e.Kind != KindFailure {
			return nil, fmt.Errorf("decode recording %s: entry %d: unknown kind %q", doc.ID, i, e.Kind)
		}
		if err := rec.SetData(e.Key, Entry{
			Kind:       e.Kind,
			Value:      e.Value,
			Structured: e.Structured,
			Deferred:   e.Deferred,
		}); err != nil {
			return nil, err
		}
	}
	if err := rec.AddMetadata(doc.Metadata); err != nil {
		return nil, err
	}
	rec.Close()

	return rec, nil
}
