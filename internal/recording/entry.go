package recording

import "fmt"

// Kind tags an Entry as plain data or a captured failure.
type Kind string

const (
	KindData    Kind = "data"
	KindFailure Kind = "failure"
)

// Entry is one recorded value.
type Entry struct {
	Kind Kind

	// Value is the data value for KindData or the serialized failure
	// payload for KindFailure. Values are stored in generic JSON shape.
	Value any

	// Structured is true when a failure payload came from an error with
	// name/message/stack, false when it is a plain thrown value.
	Structured bool

	// Deferred is true when the value settled through a deferred continuation.
	Deferred bool
}

// Data creates a data entry.
func Data(value any, deferred bool) Entry {
	return Entry{Kind: KindData, Value: value, Deferred: deferred}
}

// Failure creates a failure entry.
func Failure(payload any, structured, deferred bool) Entry {
	return Entry{Kind: KindFailure, Value: payload, Structured: structured, Deferred: deferred}
}

// IsFailure reports whether the entry holds a captured failure.
func (e Entry) IsFailure() bool {
	return e.Kind == KindFailure
}

func (e Entry) String() string {
	return fmt.Sprintf("%s(deferred=%t): %v", e.Kind, e.Deferred, e.Value)
}
