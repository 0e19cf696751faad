package tape

import (
	"errors"
	"fmt"

	"github.com/roach88/tapedeck/internal/recording"
)

// Error is a fault raised by the recorder itself, as opposed to a failure
// returned by wrapped business logic.
//
// Only ErrCodeSessionState and ErrCodeRecordingNotFound are fatal. The
// other codes degrade to passthrough or become recorded data.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RecordingID identifies the affected recording, if any.
	RecordingID string

	// Key is the interception key involved, if any.
	Key string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes recorder faults.
type ErrorCode string

const (
	// ErrCodeSessionState indicates a second session was started while one
	// was active on the same Recorder.
	ErrCodeSessionState ErrorCode = "SESSION_STATE"

	// ErrCodeRecordingNotFound indicates Play was given an unknown id.
	ErrCodeRecordingNotFound ErrorCode = "RECORDING_NOT_FOUND"

	// ErrCodeKeyMissing indicates an interception key is absent from the
	// recording being replayed.
	ErrCodeKeyMissing ErrorCode = "KEY_MISSING"

	// ErrCodeKeyDerivation indicates an input key could not be built.
	ErrCodeKeyDerivation ErrorCode = "KEY_DERIVATION"

	// ErrCodeOperationFailedDuringPlayback signals that the replayed
	// operation returned a failure. Play swallows it.
	ErrCodeOperationFailedDuringPlayback ErrorCode = "OPERATION_FAILED_DURING_PLAYBACK"

	// ErrCodeStorage indicates the cassette could not save or load.
	ErrCodeStorage ErrorCode = "STORAGE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RecordingID != "" {
		msg += fmt.Sprintf(" (recording=%s)", e.RecordingID)
	}
	if e.Key != "" {
		msg += fmt.Sprintf(" (key=%s)", e.Key)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsSessionStateFault reports whether err is a concurrent-session fault.
func IsSessionStateFault(err error) bool {
	return hasCode(err, ErrCodeSessionState)
}

// IsRecordingNotFound reports whether err came from Play on an unknown id.
func IsRecordingNotFound(err error) bool {
	return hasCode(err, ErrCodeRecordingNotFound)
}

// IsKeyMissing reports whether err is a missing interception key.
// Matches both recorder faults and raw recording lookups.
func IsKeyMissing(err error) bool {
	return hasCode(err, ErrCodeKeyMissing) || errors.Is(err, recording.ErrKeyNotFound)
}

// IsKeyDerivationFault reports whether err is an input key derivation failure.
func IsKeyDerivationFault(err error) bool {
	return hasCode(err, ErrCodeKeyDerivation)
}

// IsStorageFault reports whether err is a cassette failure.
func IsStorageFault(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

// isPlaybackSignal reports whether err is the internal operation-failed signal.
func isPlaybackSignal(err error) bool {
	return hasCode(err, ErrCodeOperationFailedDuringPlayback)
}

// isHarnessFault reports whether err must pass through wrappers unrecorded.
func isHarnessFault(err error) bool {
	return IsSessionStateFault(err) || IsRecordingNotFound(err)
}

func newSessionStateFault(msg string) *Error {
	return &Error{Code: ErrCodeSessionState, Message: msg}
}
