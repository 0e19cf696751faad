package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/cassette/redis"
	"github.com/roach88/tapedeck/internal/cassette/sqlite"
	"github.com/roach88/tapedeck/internal/config"
	"github.com/roach88/tapedeck/internal/recording"
)

// store is a cassette the CLI can enumerate and release.
type store interface {
	cassette.Cassette
	cassette.Lister
	Close() error
}

// formatter returns an OutputFormatter bound to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openStore opens the configured cassette backend. A missing SQLite file is
// an error rather than a new empty database.
func (o *RootOptions) openStore(ctx context.Context) (store, error) {
	cfg := o.Config
	switch cfg.Backend {
	case config.BackendSQLite:
		if _, err := os.Stat(cfg.SQLite.Path); err != nil {
			return nil, WrapExitError(ExitCommandError, "database not found", err)
		}
		st, err := sqlite.Open(cfg.SQLite.Path, sqlite.WithLogger(o.Logger))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		o.Logger.Debug("opened sqlite cassette", "path", cfg.SQLite.Path)
		return st, nil

	case config.BackendRedis:
		st, err := redis.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix),
			redis.WithTTL(cfg.Redis.TTL),
			redis.WithLogger(o.Logger),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
		}
		o.Logger.Debug("opened redis cassette", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)
		return st, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown backend %q", cfg.Backend))
}

// withStore opens the store, runs fn and closes the store.
func (o *RootOptions) withStore(ctx context.Context, fn func(store) error) error {
	st, err := o.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			o.Logger.Error("error closing cassette", "error", closeErr)
		}
	}()
	return fn(st)
}

// loadRecording fetches id and maps cassette errors to exit codes.
func loadRecording(ctx context.Context, st store, id string) (recording.Recording, error) {
	rec, err := st.GetRecording(ctx, id)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, cassette.ErrNotFound):
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("recording %s not found", id), err)
	case errors.Is(err, sqlite.ErrCorrupt):
		return nil, WrapExitError(ExitFailure, fmt.Sprintf("recording %s is corrupt", id), err)
	default:
		return nil, WrapExitError(ExitCommandError, "failed to load recording", err)
	}
}
