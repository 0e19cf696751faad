// Package recording defines the container that holds one captured execution.
//
// A Recording is an ordered key -> Entry store plus a metadata map. It is
// written only while a recording session is active, sealed with Close when
// the session ends, and read-only afterwards (including during every
// playback that reads it).
//
// Entries are a tagged union:
//
//	Data{Value, Deferred}
//	Failure{Value (payload), Structured, Deferred}
//
// Deferred records whether the original value settled through a deferred
// continuation, so playback can hand back the same shape.
//
// # Persisted Format
//
// Encode and Decode convert a Recording to and from its persisted document:
//
//	{
//	  "category": "operation",
//	  "entries": [{"deferred":false,"key":"...","kind":"data","value":...}],
//	  "id": "operation/0190...",
//	  "metadata": {...}
//	}
//
// Documents are written as canonical JSON so identical recordings encode to
// identical bytes. Entry order is preserved.
package recording
