package tape

import (
	"fmt"
	"maps"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/recording"
)

// ThrownValue is a failure carrying an arbitrary value rather than a
// structured error. Create one with Throw.
type ThrownValue struct {
	Value any
}

// Throw returns an error that records v verbatim.
func Throw(v any) error {
	return &ThrownValue{Value: v}
}

// Error renders strings as-is and everything else as canonical JSON, so a
// replayed value prints the same as the original.
func (t *ThrownValue) Error() string {
	if s, ok := t.Value.(string); ok {
		return s
	}
	s, err := canon.MarshalString(t.Value)
	if err != nil {
		return fmt.Sprintf("%v", t.Value)
	}
	return s
}

// RecordedError is a structured failure rebuilt from a recording.
// Every replay produces a fresh value.
type RecordedError struct {
	name    string
	message string
	stack   string
	fields  map[string]any
}

// Name returns the type name of the original error.
func (e *RecordedError) Name() string {
	return e.name
}

// Error returns the original error message.
func (e *RecordedError) Error() string {
	return e.message
}

// StackTrace returns the original stack trace, if one was captured.
func (e *RecordedError) StackTrace() string {
	return e.stack
}

// Fields returns a copy of the original error's JSON-visible fields.
func (e *RecordedError) Fields() map[string]any {
	return maps.Clone(e.fields)
}

// Field returns a single recorded field.
func (e *RecordedError) Field(name string) (any, bool) {
	v, ok := e.fields[name]
	return v, ok
}

// stackTracer is implemented by errors that carry a stack trace.
type stackTracer interface {
	StackTrace() string
}

// Payload field names of a structured failure.
const (
	failureName    = "name"
	failureMessage = "message"
	failureStack   = "stack"
	failureFields  = "fields"
)

// encodeFailure converts err into its recorded payload.
// ThrownValue yields its normalized value; anything else yields
// {name, message, stack, fields}.
func encodeFailure(err error) (payload any, structured bool, encErr error) {
	switch e := err.(type) {
	case *ThrownValue:
		v, nerr := canon.Normalize(e.Value)
		if nerr != nil {
			return nil, false, fmt.Errorf("encode thrown value: %w", nerr)
		}
		return v, false, nil
	case *RecordedError:
		return structuredPayload(e.name, e.message, e.stack, maps.Clone(e.fields)), true, nil
	}

	var stack string
	if st, ok := err.(stackTracer); ok {
		stack = st.StackTrace()
	}
	return structuredPayload(fmt.Sprintf("%T", err), err.Error(), stack, errorFields(err)), true, nil
}

func structuredPayload(name, message, stack string, fields map[string]any) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	return map[string]any{
		failureName:    name,
		failureMessage: message,
		failureStack:   stack,
		failureFields:  fields,
	}
}

// errorFields returns the JSON-visible fields of an error value.
// Errors that do not encode to a JSON object have no fields.
func errorFields(err error) map[string]any {
	v, nerr := canon.Normalize(err)
	if nerr != nil {
		return map[string]any{}
	}
	fields, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return fields
}

// decodeFailure rebuilds the error stored in a failure entry.
func decodeFailure(entry recording.Entry) error {
	if !entry.Structured {
		return &ThrownValue{Value: entry.Value}
	}

	payload, _ := entry.Value.(map[string]any)
	e := &RecordedError{fields: map[string]any{}}
	e.name, _ = payload[failureName].(string)
	e.message, _ = payload[failureMessage].(string)
	e.stack, _ = payload[failureStack].(string)
	if fields, ok := payload[failureFields].(map[string]any); ok {
		e.fields = maps.Clone(fields)
	}
	return e
}

// failureForm is the value recorded as an operation output when the
// operation fails.
func failureForm(err error) any {
	payload, structured, encErr := encodeFailure(err)
	if encErr != nil {
		payload, structured = structuredPayload(fmt.Sprintf("%T", err), err.Error(), "", nil), true
	}
	return map[string]any{
		"failure":    payload,
		"structured": structured,
	}
}
