package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tapedeck/internal/cassette/sqlite"
	"github.com/roach88/tapedeck/internal/tape"
	"github.com/roach88/tapedeck/internal/testutil"
)

// seedDatabase records two operations into a fresh SQLite cassette:
// "checkout/0001" (succeeds) and "refund/0002" (fails).
func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapes.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewFakeClock()

	st, err := sqlite.Open(path,
		sqlite.WithIDGenerator(testutil.NewCountingGenerator(2)),
		sqlite.WithClock(clock.Now),
		sqlite.WithLogger(logger),
	)
	require.NoError(t, err)
	defer st.Close()

	r := tape.New(st, tape.WithClock(clock.Now), tape.WithLogger(logger))
	r.EnableRecording()

	price := r.InterceptInput("price", func(ctx context.Context, args ...any) (any, error) {
		return 5, nil
	}, nil)
	charge := r.InterceptOutput("charge", func(ctx context.Context, args ...any) (any, error) {
		return "ch_1", nil
	})
	checkout := r.WrapOperation("checkout", func(ctx context.Context, args ...any) (any, error) {
		clock.Advance(100 * time.Millisecond)
		amount, err := price(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if _, err := charge(ctx, amount, args[0]); err != nil {
			return nil, err
		}
		return "ok", nil
	})
	refund := r.WrapOperation("refund", func(ctx context.Context, args ...any) (any, error) {
		return nil, tape.Throw("refund window closed")
	})

	ctx := context.Background()
	_, err = checkout(ctx, "cart-7")
	require.NoError(t, err)
	_, err = refund(ctx)
	require.Error(t, err)

	return path
}

// writeConfig writes a YAML config selecting the SQLite cassette at dbPath.
func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapedeck.yaml")
	data := fmt.Sprintf("backend: sqlite\nlog_level: warn\nsqlite:\n  path: %s\n", dbPath)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
