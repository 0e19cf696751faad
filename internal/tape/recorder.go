package tape

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/recording"
)

// Func is the shape of every function the recorder wraps. The context is
// never part of an interception key.
//
// A wrapped function may return a *Deferred as its result to settle later.
type Func func(ctx context.Context, args ...any) (any, error)

// Mode is the recorder's session state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeRecording
	ModePlayback
)

func (m Mode) String() string {
	switch m {
	case ModeRecording:
		return "recording"
	case ModePlayback:
		return "playback"
	default:
		return "idle"
	}
}

// Recorder captures executions of wrapped operations into recordings and
// replays them.
//
// Session state is instance-wide: a Recorder runs at most one recording or
// playback session at a time, and starting a second one fails with an
// ErrCodeSessionState error. Use one Recorder per concurrent operation.
//
// Thread-safety: all methods are safe for concurrent use. The internal
// mutex is never held while wrapped functions run.
type Recorder struct {
	cassette cassette.Cassette
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	mu               sync.Mutex
	recordingEnabled bool
	session          *session
	playback         *playback
	capturing        bool
}

// session is one active recording.
type session struct {
	rec      recording.Recording
	category string
	start    time.Time
	span     trace.Span
	aborted  bool

	outputCounters map[string]int
	inputCounters  map[string]int
}

// playback is one active replay.
type playback struct {
	rec     recording.Recording
	outputs []Output

	outputCounters map[string]int
	inputCounters  map[string]int
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithTracer sets the tracer used for session spans. Default: a noop tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Recorder) {
		r.tracer = tracer
	}
}

// WithClock sets the wall clock used for durations and timestamps.
// Default: time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// New creates an idle Recorder over c. Recording is off until EnableRecording.
func New(c cassette.Cassette, opts ...Option) *Recorder {
	r := &Recorder{
		cassette: c,
		logger:   slog.Default(),
		tracer:   noop.NewTracerProvider().Tracer("tapedeck"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cassette returns the cassette recordings are stored in.
func (r *Recorder) Cassette() cassette.Cassette {
	return r.cassette
}

// EnableRecording opts in to recording. It does not start a session; the
// next call to a wrapped operation does.
func (r *Recorder) EnableRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingEnabled = true
	r.logger.Info("recording enabled")
}

// RecordingEnabled reports whether EnableRecording was called.
func (r *Recorder) RecordingEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recordingEnabled
}

// Mode returns the current session state.
func (r *Recorder) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.playback != nil:
		return ModePlayback
	case r.session != nil:
		return ModeRecording
	default:
		return ModeIdle
	}
}

// ShouldIntercept reports whether an interception point called now would
// record or replay: a live session or playback is active and no capture is
// in progress.
func (r *Recorder) ShouldIntercept() bool {
	_, _, ok := r.interceptState()
	return ok
}

// interceptState returns the active session or playback when interception applies.
func (r *Recorder) interceptState() (*session, *playback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capturing {
		return nil, nil, false
	}
	if r.playback != nil {
		return nil, r.playback, true
	}
	if r.session != nil && !r.session.aborted {
		return r.session, nil, true
	}
	return nil, nil, false
}

// WrapOperation returns fn wrapped as a recordable operation.
//
// During playback the operation runs and its result is captured as the
// operation output. When recording is enabled and the recorder is idle, a
// call starts a recording session. Otherwise fn is called directly.
func (r *Recorder) WrapOperation(category string, fn Func) Func {
	return func(ctx context.Context, args ...any) (any, error) {
		r.mu.Lock()
		p := r.playback
		enabled := r.recordingEnabled
		r.mu.Unlock()

		if p != nil {
			return r.executeOperation(ctx, nil, p, fn, args)
		}
		if !enabled {
			return fn(ctx, args...)
		}
		return r.executeWithRecording(ctx, category, fn, args)
	}
}

func (r *Recorder) executeWithRecording(ctx context.Context, category string, fn Func, args []any) (any, error) {
	r.mu.Lock()
	if r.session != nil || r.playback != nil {
		r.mu.Unlock()
		return nil, newSessionStateFault("recording already active")
	}
	rec := r.cassette.CreateNewRecording(category)
	ctx, span := r.tracer.Start(ctx, "tape.record", trace.WithAttributes(
		attribute.String("tape.category", category),
		attribute.String("tape.recording_id", rec.ID()),
	))
	s := &session{
		rec:            rec,
		category:       category,
		start:          r.now(),
		span:           span,
		outputCounters: make(map[string]int),
		inputCounters:  make(map[string]int),
	}
	r.session = s
	r.mu.Unlock()

	r.logger.Info("recording started",
		"category", category,
		"recording_id", rec.ID(),
	)

	r.storeOperationInput(s, args)

	result, err := r.executeOperation(ctx, s, nil, fn, args)
	if d, ok := result.(*Deferred); ok && err == nil {
		saveCtx := context.WithoutCancel(ctx)
		d.OnSettle(func(_ any, settleErr error) {
			r.finishSession(saveCtx, s, settleErr)
		})
		return d, nil
	}

	r.finishSession(ctx, s, err)
	return result, err
}

func (r *Recorder) storeOperationInput(s *session, args []any) {
	if args == nil {
		args = []any{}
	}
	normalized, err := canon.Normalize(args)
	if err != nil {
		r.abortSession(s, "operation input not serializable", err)
		return
	}
	if err := s.rec.SetData(OperationInputKey, recording.Data(normalized, false)); err != nil {
		r.abortSession(s, "operation input not stored", err)
	}
}

// executeOperation runs fn and captures its settled outcome as the
// operation output of s (recording) or p (playback).
func (r *Recorder) executeOperation(ctx context.Context, s *session, p *playback, fn Func, args []any) (any, error) {
	result, err := fn(ctx, args...)
	if err != nil {
		return nil, r.operationFailed(s, p, err)
	}

	d, ok := result.(*Deferred)
	if !ok {
		r.recordOutput(s, p, OperationOutputKey, []any{result})
		return result, nil
	}

	if p == nil {
		d.OnSettle(func(v any, settleErr error) {
			if settleErr != nil {
				r.operationFailed(s, nil, settleErr)
				return
			}
			r.recordOutput(s, nil, OperationOutputKey, []any{v})
		})
		return d, nil
	}

	// Playback hands back a derived deferred so a rejection reaches Play
	// as the playback signal.
	out := NewDeferred()
	d.OnSettle(func(v any, settleErr error) {
		if settleErr != nil {
			out.Reject(r.operationFailed(nil, p, settleErr))
			return
		}
		r.recordOutput(nil, p, OperationOutputKey, []any{v})
		out.Resolve(v)
	})
	return out, nil
}

// operationFailed records err as the operation output and returns the
// error the caller should see.
func (r *Recorder) operationFailed(s *session, p *playback, err error) error {
	if isHarnessFault(err) {
		return err
	}

	r.recordOutput(s, p, OperationOutputKey, []any{failureForm(err)})

	if p != nil {
		return &Error{
			Code:        ErrCodeOperationFailedDuringPlayback,
			Message:     "operation failed during playback",
			RecordingID: p.rec.ID(),
			Err:         err,
		}
	}
	return err
}

// recordOutput stores observed call arguments under key: appended to the
// playback outputs, or written to the recording.
func (r *Recorder) recordOutput(s *session, p *playback, key string, args []any) {
	if args == nil {
		args = []any{}
	}
	normalized, err := canon.Normalize(args)

	if p != nil {
		if err != nil {
			r.logger.Warn("playback output not serializable",
				"key", key,
				"error", err,
			)
			normalized = args
		}
		r.mu.Lock()
		p.outputs = append(p.outputs, Output{Key: key, Value: normalized})
		r.mu.Unlock()
		return
	}

	if s == nil {
		return
	}
	if err != nil {
		r.abortSession(s, "output not serializable", err)
		return
	}
	r.storeEntry(s, key, recording.Data(normalized, false))
}

// storeEntry writes entry into the session's recording unless the session
// was aborted.
func (r *Recorder) storeEntry(s *session, key string, entry recording.Entry) {
	r.mu.Lock()
	aborted := s.aborted
	r.mu.Unlock()
	if aborted {
		return
	}

	r.logger.Debug("recording data",
		"recording_id", s.rec.ID(),
		"key", key,
		"kind", entry.Kind,
		"deferred", entry.Deferred,
	)

	if err := s.rec.SetData(key, entry); err != nil {
		if errors.Is(err, recording.ErrClosed) {
			r.logger.Debug("value settled after recording closed",
				"recording_id", s.rec.ID(),
				"key", key,
			)
			return
		}
		r.logger.Warn("recording data failed",
			"recording_id", s.rec.ID(),
			"key", key,
			"error", err,
		)
	}
}

// finishSession releases the session slot, stamps metadata and saves the
// recording. Save failures are logged and swallowed.
func (r *Recorder) finishSession(ctx context.Context, s *session, opErr error) {
	r.mu.Lock()
	if r.session == s {
		r.session = nil
	}
	aborted := s.aborted
	r.mu.Unlock()

	defer s.span.End()

	duration := r.now().Sub(s.start)
	if opErr != nil {
		s.span.SetStatus(codes.Error, opErr.Error())
	}

	if aborted {
		s.span.SetAttributes(attribute.Bool("tape.aborted", true))
		r.logger.Info("recording discarded",
			"category", s.category,
			"recording_id", s.rec.ID(),
		)
		return
	}

	err := s.rec.AddMetadata(map[string]any{
		MetaExceptionInOperation: opErr != nil,
		MetaRecordedAt:           r.now().UTC().Format(RecordedAtLayout),
		MetaDuration:             duration.Milliseconds(),
	})
	if err != nil {
		r.logger.Warn("recording metadata failed",
			"recording_id", s.rec.ID(),
			"error", err,
		)
	}

	if err := r.cassette.SaveRecording(ctx, s.rec); err != nil {
		fault := &Error{
			Code:        ErrCodeStorage,
			Message:     "failed saving recording",
			RecordingID: s.rec.ID(),
			Err:         err,
		}
		s.span.RecordError(fault)
		r.logger.Error("failed saving recording",
			"category", s.category,
			"recording_id", s.rec.ID(),
			"error", fault,
		)
		return
	}

	r.logger.Info("recording finished",
		"category", s.category,
		"recording_id", s.rec.ID(),
		"duration", duration,
	)
}

// abortSession discards the session's recording. The session keeps its
// slot until the operation returns, but stops intercepting.
func (r *Recorder) abortSession(s *session, reason string, err error) {
	r.mu.Lock()
	if s.aborted {
		r.mu.Unlock()
		return
	}
	s.aborted = true
	r.mu.Unlock()

	r.logger.Warn("aborting recording",
		"recording_id", s.rec.ID(),
		"reason", reason,
		"error", err,
	)
	r.cassette.AbortRecording(s.rec)
}
