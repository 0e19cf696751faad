package tape

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/recording"
)

// Output is one observed interception event.
type Output struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// PlaybackResult is the outcome of one replay, ready for comparison.
type PlaybackResult struct {
	// OriginalRecording is the recording that was replayed.
	OriginalRecording recording.Recording

	// PlaybackDuration is the wall time of the replay.
	PlaybackDuration time.Duration

	// PlaybackOutputs are the outputs observed during the replay, in order.
	PlaybackOutputs []Output

	// RecordedDuration is the duration stored when the recording was made.
	RecordedDuration time.Duration

	// RecordedOutputs are the outputs stored in the recording, in key order.
	RecordedOutputs []Output
}

// Play replays the recording with the given id by calling driver, which
// should be the wrapped operation (or an equivalent built on this
// Recorder). The driver receives the recorded operation arguments.
//
// A failure of the replayed operation is not an error: it shows up in
// PlaybackOutputs. Play fails for an unknown id, when another session is
// active, or when driver fails outside the wrapped operation.
func (r *Recorder) Play(ctx context.Context, id string, driver Func) (*PlaybackResult, error) {
	rec, err := r.cassette.GetRecording(ctx, id)
	if err != nil {
		if errors.Is(err, cassette.ErrNotFound) {
			return nil, &Error{
				Code:        ErrCodeRecordingNotFound,
				Message:     "recording not found",
				RecordingID: id,
				Err:         err,
			}
		}
		return nil, &Error{
			Code:        ErrCodeStorage,
			Message:     "failed loading recording",
			RecordingID: id,
			Err:         err,
		}
	}

	p := &playback{
		rec:            rec,
		outputs:        []Output{},
		outputCounters: make(map[string]int),
		inputCounters:  make(map[string]int),
	}

	r.mu.Lock()
	if r.session != nil || r.playback != nil {
		r.mu.Unlock()
		return nil, newSessionStateFault("cannot play while another session is active")
	}
	r.playback = p
	r.mu.Unlock()

	ctx, span := r.tracer.Start(ctx, "tape.play", trace.WithAttributes(
		attribute.String("tape.recording_id", id),
	))
	defer span.End()

	r.logger.Info("playback started", "recording_id", id)

	start := r.now()
	runErr := r.runDriver(ctx, p, driver, operationArgs(rec))
	playbackDuration := r.now().Sub(start)

	r.mu.Lock()
	playbackOutputs := slices.Clone(p.outputs)
	r.mu.Unlock()

	if runErr != nil && !isPlaybackSignal(runErr) {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return nil, runErr
	}

	recordedOutputs, err := RecordedOutputs(rec)
	if err != nil {
		return nil, err
	}

	r.logger.Info("playback finished",
		"recording_id", id,
		"duration", playbackDuration,
		"outputs", len(playbackOutputs),
	)

	return &PlaybackResult{
		OriginalRecording: rec,
		PlaybackDuration:  playbackDuration,
		PlaybackOutputs:   playbackOutputs,
		RecordedDuration:  recordedDuration(rec),
		RecordedOutputs:   recordedOutputs,
	}, nil
}

// runDriver calls driver with p bound, awaits a deferred result and always
// unbinds p.
func (r *Recorder) runDriver(ctx context.Context, p *playback, driver Func, args []any) error {
	defer func() {
		r.mu.Lock()
		if r.playback == p {
			r.playback = nil
		}
		r.mu.Unlock()
	}()

	result, err := driver(ctx, args...)
	if err != nil {
		return err
	}
	if d, ok := result.(*Deferred); ok {
		_, err = d.Await(ctx)
	}
	return err
}

// operationArgs returns the recorded operation arguments, or nil when the
// recording has none.
func operationArgs(rec recording.Recording) []any {
	entry, err := rec.GetData(OperationInputKey)
	if err != nil {
		return nil
	}
	args, _ := entry.Value.([]any)
	return args
}

func recordedDuration(rec recording.Recording) time.Duration {
	var ms int64
	switch v := rec.Metadata()[MetaDuration].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			ms = n
		} else if f, err := v.Float64(); err == nil {
			ms = int64(f)
		}
	case int64:
		ms = v
	case int:
		ms = int64(v)
	case float64:
		ms = int64(v)
	}
	return time.Duration(ms) * time.Millisecond
}

// RecordedOutputs returns the outputs stored in rec: every key starting
// with "output:" and not ending in "result", in key order.
func RecordedOutputs(rec recording.Recording) ([]Output, error) {
	outputs := []Output{}
	for _, key := range rec.Keys() {
		if !strings.HasPrefix(key, strings.TrimSpace(outputPrefix)) || strings.HasSuffix(key, "result") {
			continue
		}
		entry, err := rec.GetData(key)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, Output{Key: key, Value: entry.Value})
	}
	return outputs, nil
}
