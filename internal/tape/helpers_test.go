package tape

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/cassette/sqlite"
	"github.com/roach88/tapedeck/internal/recording"
	"github.com/roach88/tapedeck/internal/testutil"
)

// discardLogger keeps test output quiet.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRecorder returns an enabled recorder over a memory cassette with
// deterministic ids ("<category>/0001", ...) and a fake clock.
func newTestRecorder(t *testing.T, opts ...Option) (*Recorder, *cassette.Memory, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock()
	c := cassette.NewMemory(
		cassette.WithIDGenerator(testutil.NewCountingGenerator(50)),
		cassette.WithLogger(discardLogger()),
	)
	base := []Option{WithClock(clock.Now), WithLogger(discardLogger())}
	r := New(c, append(base, opts...)...)
	r.EnableRecording()
	return r, c, clock
}

// newSQLiteCassette opens a SQLite cassette in a temp dir with ids
// "<category>/0001", ...
func newSQLiteCassette(t *testing.T, maxRecordings int) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "tapes.db"),
		sqlite.WithIDGenerator(testutil.NewCountingGenerator(maxRecordings)),
		sqlite.WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// lastRecordingID returns the most recently saved id in c.
func lastRecordingID(t *testing.T, c cassette.Lister) string {
	t.Helper()
	ids, err := c.ListRecordings(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ids, "no recording saved")
	return ids[len(ids)-1]
}

// recordOnce runs op while recording and returns the saved recording id.
func recordOnce(t *testing.T, c *cassette.Memory, op Func, args ...any) string {
	t.Helper()
	result, err := op(context.Background(), args...)
	if d, ok := result.(*Deferred); ok && err == nil {
		_, _ = d.Await(context.Background())
	}
	id := c.LastRecordingID()
	require.NotEmpty(t, id, "no recording saved")
	return id
}

func num(s string) json.Number {
	return json.Number(s)
}

// failingCassette seals recordings but never stores them, reporting a
// storage error.
type failingCassette struct {
	*cassette.Memory
	saveCalls int
}

func (f *failingCassette) SaveRecording(_ context.Context, rec recording.Recording) error {
	f.saveCalls++
	rec.Close()
	return errors.New("disk unavailable")
}
