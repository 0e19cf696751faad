// Package tapetest provides helpers for testing code instrumented with a
// tape.Recorder: a deterministic recording session, record-then-replay in
// one call, and golden-file comparison of recordings.
package tapetest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/recording"
	"github.com/roach88/tapedeck/internal/tape"
	"github.com/roach88/tapedeck/internal/testutil"
)

// Session is an enabled Recorder over an in-memory cassette with a fake
// clock and sequential recording ids ("<category>/0001", ...).
type Session struct {
	Recorder *tape.Recorder
	Cassette *cassette.Memory
	Clock    *testutil.FakeClock
}

// NewSession creates a Session. maxRecordings bounds the ids available;
// creating more recordings panics.
func NewSession(t testing.TB, maxRecordings int, opts ...tape.Option) *Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock()
	c := cassette.NewMemory(
		cassette.WithIDGenerator(testutil.NewCountingGenerator(maxRecordings)),
		cassette.WithLogger(logger),
	)
	base := []tape.Option{tape.WithClock(clock.Now), tape.WithLogger(logger)}
	r := tape.New(c, append(base, opts...)...)
	r.EnableRecording()
	return &Session{Recorder: r, Cassette: c, Clock: clock}
}

// Record calls op once with args while recording, waits for a deferred
// result, and returns the saved recording.
func (s *Session) Record(t testing.TB, op tape.Func, args ...any) recording.Recording {
	t.Helper()
	ctx := context.Background()

	result, err := op(ctx, args...)
	if d, ok := result.(*tape.Deferred); ok && err == nil {
		_, _ = d.Await(ctx)
	}

	id := s.Cassette.LastRecordingID()
	require.NotEmpty(t, id, "operation did not save a recording")

	rec, err := s.Cassette.GetRecording(ctx, id)
	require.NoError(t, err)
	return rec
}

// RecordAndPlay records op once and replays the recording.
func (s *Session) RecordAndPlay(t testing.TB, op tape.Func, args ...any) *tape.PlaybackResult {
	t.Helper()
	rec := s.Record(t, op, args...)

	res, err := s.Recorder.Play(context.Background(), rec.ID(), op)
	require.NoError(t, err)
	return res
}

// AssertReplayMatches fails the test unless the replay observed exactly
// the recorded outputs.
func AssertReplayMatches(t testing.TB, res *tape.PlaybackResult) bool {
	t.Helper()
	return assert.Equal(t, res.RecordedOutputs, res.PlaybackOutputs,
		"playback outputs differ from recording %s", res.OriginalRecording.ID())
}

// AssertGolden compares the canonical encoding of rec against
// testdata/golden/<name>.golden.
//
// To regenerate golden files, run the test with -update.
func AssertGolden(t *testing.T, name string, rec recording.Recording) {
	t.Helper()

	data, err := recording.Encode(rec)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
