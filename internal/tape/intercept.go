package tape

import (
	"context"
	"errors"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/recording"
)

// InterceptInput wraps a source of non-deterministic input.
//
// While recording, fn runs and its settled value or failure is stored
// under the input key derived from alias and the selected arguments.
// During playback the stored value is returned without calling fn; a key
// missing from the recording falls back to calling fn. A nil extractor
// selects all arguments.
//
// Replayed values have their JSON shape (json.Number, map[string]any,
// []any), not the Go type fn returned while recording. Convert them with
// As or use Input1/Input2 instead of asserting the concrete type.
func (r *Recorder) InterceptInput(alias string, fn Func, extractor KeyExtractor) Func {
	return func(ctx context.Context, args ...any) (any, error) {
		s, p, ok := r.interceptState()
		if !ok {
			return fn(ctx, args...)
		}

		key, err := InputKey(alias, args, extractor)
		if err != nil {
			if p != nil {
				return nil, err
			}
			r.abortSession(s, "input key derivation failed", err)
			return fn(ctx, args...)
		}
		key = r.nextInputKey(s, p, key)

		if p == nil {
			return r.executeAndCapture(ctx, s, key, fn, args)
		}

		entry, err := p.rec.GetData(key)
		if errors.Is(err, recording.ErrKeyNotFound) {
			r.logger.Debug("input not recorded, calling through",
				"recording_id", p.rec.ID(),
				"key", key,
			)
			return fn(ctx, args...)
		}
		if err != nil {
			return nil, err
		}
		return replayEntry(entry)
	}
}

// InterceptOutput wraps a sink whose call arguments are observable output.
//
// The call arguments are always captured under the ".output" key. While
// recording, fn runs and its result is stored under the ".result" key.
// During playback fn is skipped and the stored result is returned; a
// missing result is an ErrCodeKeyMissing error. Replayed results have their
// JSON shape; see Output1/Output2 and As.
func (r *Recorder) InterceptOutput(alias string, fn Func) Func {
	return func(ctx context.Context, args ...any) (any, error) {
		s, p, ok := r.interceptState()
		if !ok {
			return fn(ctx, args...)
		}

		n := r.nextOutputInvocation(s, p, alias)
		r.recordOutput(s, p, OutputArgsKey(alias, n), args)
		resultKey := OutputResultKey(alias, n)

		if p != nil {
			entry, err := p.rec.GetData(resultKey)
			if err != nil {
				return nil, &Error{
					Code:        ErrCodeKeyMissing,
					Message:     "recorded result missing",
					RecordingID: p.rec.ID(),
					Key:         resultKey,
					Err:         err,
				}
			}
			return replayEntry(entry)
		}

		// Storing the arguments may have discarded the session.
		if _, _, ok := r.interceptState(); !ok {
			return fn(ctx, args...)
		}
		return r.executeAndCapture(ctx, s, resultKey, fn, args)
	}
}

// Mute wraps a call whose value must never reach a recording, such as a
// secret lookup. While recording fn runs normally and nothing is stored.
// During playback fn is skipped and placeholder is returned (default: an
// empty map).
func (r *Recorder) Mute(fn Func, placeholder ...any) Func {
	return func(ctx context.Context, args ...any) (any, error) {
		_, p, ok := r.interceptState()
		if !ok {
			return fn(ctx, args...)
		}
		if p != nil {
			if len(placeholder) > 0 {
				return placeholder[0], nil
			}
			return map[string]any{}, nil
		}

		// Nested interceptions are suppressed so recording sees the same
		// calls playback will.
		restore := r.beginCapture()
		defer restore()
		return fn(ctx, args...)
	}
}

func (r *Recorder) nextOutputInvocation(s *session, p *playback, alias string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counters map[string]int
	if p != nil {
		counters = p.outputCounters
	} else {
		counters = s.outputCounters
	}
	counters[alias]++
	return counters[alias]
}

func (r *Recorder) nextInputKey(s *session, p *playback, key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counters map[string]int
	if p != nil {
		counters = p.inputCounters
	} else {
		counters = s.inputCounters
	}
	counters[key]++
	return occurrenceKey(key, counters[key])
}

// beginCapture sets the re-entrancy guard and returns a func that clears it.
func (r *Recorder) beginCapture() func() {
	r.mu.Lock()
	r.capturing = true
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.capturing = false
		r.mu.Unlock()
	}
}

// executeAndCapture runs fn with the re-entrancy guard set and stores its
// outcome under key. The live result is returned unchanged.
func (r *Recorder) executeAndCapture(ctx context.Context, s *session, key string, fn Func, args []any) (any, error) {
	restore := r.beginCapture()
	defer restore()

	result, err := fn(ctx, args...)
	r.storeResult(s, key, result, err)
	return result, err
}

// storeResult records a call outcome. Deferred results are stored when
// they settle.
func (r *Recorder) storeResult(s *session, key string, result any, err error) {
	if err != nil {
		r.storeFailure(s, key, err, false)
		return
	}

	if d, ok := result.(*Deferred); ok {
		d.OnSettle(func(v any, settleErr error) {
			if settleErr != nil {
				r.storeFailure(s, key, settleErr, true)
				return
			}
			r.storeValue(s, key, v, true)
		})
		return
	}

	r.storeValue(s, key, result, false)
}

func (r *Recorder) storeValue(s *session, key string, v any, deferred bool) {
	normalized, err := canon.Normalize(v)
	if err != nil {
		r.abortSession(s, "value not serializable", err)
		return
	}
	r.storeEntry(s, key, recording.Data(normalized, deferred))
}

func (r *Recorder) storeFailure(s *session, key string, failure error, deferred bool) {
	if isHarnessFault(failure) {
		return
	}
	payload, structured, err := encodeFailure(failure)
	if err != nil {
		r.abortSession(s, "failure not serializable", err)
		return
	}
	r.storeEntry(s, key, recording.Failure(payload, structured, deferred))
}

// replayEntry rebuilds a recorded outcome in its original shape.
func replayEntry(entry recording.Entry) (any, error) {
	if entry.IsFailure() {
		err := decodeFailure(entry)
		if entry.Deferred {
			return Rejected(err), nil
		}
		return nil, err
	}
	if entry.Deferred {
		return Resolved(entry.Value), nil
	}
	return entry.Value, nil
}
