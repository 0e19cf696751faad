package tape

import (
	"fmt"
	"strconv"

	"github.com/roach88/tapedeck/internal/canon"
)

// Persisted key and metadata names. These are part of the recording format
// and must not change between versions.
const (
	// OperationOutputAlias is the alias under which a wrapped operation's
	// own result is recorded.
	OperationOutputAlias = "_tape_recorder_operation"

	// OperationInputKey holds the wrapped operation's call arguments.
	OperationInputKey = "_tape_recorder_operation_input"

	// MetaDuration is the recording duration in milliseconds.
	MetaDuration = "_tape_recorder_recording_duration"

	// MetaRecordedAt is the UTC time the recording finished, in RecordedAtLayout.
	MetaRecordedAt = "_tape_recorder_recorded_at"

	// MetaExceptionInOperation is true when the operation itself failed.
	MetaExceptionInOperation = "_tape_recorder_exception_in_operation"
)

// RecordedAtLayout formats MetaRecordedAt (RFC 1123 with a literal GMT zone).
const RecordedAtLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

const (
	outputPrefix = "output: "
	inputPrefix  = "input: "
	argsSuffix   = ".output"
	resultSuffix = ".result"
)

// KeyExtractor selects the arguments that identify an input interception.
// Use it to drop timing-dependent or irrelevant arguments from the key.
type KeyExtractor func(args ...any) (any, error)

// OutputKey returns the key prefix for invocation n of alias.
func OutputKey(alias string, n int) string {
	return outputPrefix + alias + " #" + strconv.Itoa(n)
}

// OutputArgsKey returns the key holding the call arguments of invocation n.
func OutputArgsKey(alias string, n int) string {
	return OutputKey(alias, n) + argsSuffix
}

// OutputResultKey returns the key holding the result of invocation n.
func OutputResultKey(alias string, n int) string {
	return OutputKey(alias, n) + resultSuffix
}

// OperationOutputKey is the key of the recorded operation output.
var OperationOutputKey = OutputArgsKey(OperationOutputAlias, 1)

// InputKey derives the key of an input interception from its alias and
// the canonical JSON of the selected arguments. With a nil extractor the
// full argument list is selected.
//
// Extractor failures and panics return an ErrCodeKeyDerivation error.
func InputKey(alias string, args []any, extractor KeyExtractor) (key string, err error) {
	if args == nil {
		args = []any{}
	}

	var selected any = args
	if extractor != nil {
		selected, err = runExtractor(extractor, args)
		if err != nil {
			return "", &Error{
				Code:    ErrCodeKeyDerivation,
				Message: fmt.Sprintf("key extractor for %q failed", alias),
				Err:     err,
			}
		}
	}

	serialized, err := canon.MarshalString(selected)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeKeyDerivation,
			Message: fmt.Sprintf("arguments of %q are not serializable", alias),
			Err:     err,
		}
	}

	return inputPrefix + alias + " args=" + serialized, nil
}

func runExtractor(extractor KeyExtractor, args []any) (selected any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return extractor(args...)
}

// occurrenceKey suffixes the n-th repeat of an input key, starting at the
// second occurrence.
func occurrenceKey(key string, n int) string {
	if n <= 1 {
		return key
	}
	return key + " #" + strconv.Itoa(n)
}
