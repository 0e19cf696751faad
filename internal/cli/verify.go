package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tapedeck/internal/cassette"
	"github.com/roach88/tapedeck/internal/cassette/sqlite"
)

// VerifyResult is the JSON payload of the verify command.
type VerifyResult struct {
	Checked int           `json:"checked"`
	Corrupt int           `json:"corrupt"`
	Results []VerifyEntry `json:"results"`
}

// VerifyEntry is the outcome for one recording.
type VerifyEntry struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [recording-id]",
		Short: "Check stored recordings against their digests",
		Long: `Check that stored recording documents still match the digest
computed when they were saved. Without an id every recording is checked.
Requires the SQLite backend.

Exit codes:
  0 - All checked recordings are intact
  1 - At least one recording is corrupt
  2 - Command error (unknown recording, unsupported backend)

Examples:
  tapedeck verify
  tapedeck verify checkout/0190c1d2-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runVerify(rootOpts, cmd, id)
		},
	}
	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	return opts.withStore(ctx, func(st store) error {
		s, ok := st.(*sqlite.Store)
		if !ok {
			return NewExitError(ExitCommandError,
				fmt.Sprintf("verify requires the sqlite backend (configured: %s)", opts.Config.Backend))
		}

		ids, err := verifyTargets(ctx, s, id)
		if err != nil {
			return err
		}

		f := opts.formatter(cmd)
		result := VerifyResult{Results: []VerifyEntry{}}
		for _, rid := range ids {
			f.VerboseLog("checking %s", rid)
			entry := VerifyEntry{ID: rid, OK: true}
			if err := s.Verify(ctx, rid); err != nil {
				if !errors.Is(err, sqlite.ErrCorrupt) {
					return loadError(rid, err)
				}
				entry.OK = false
				entry.Error = err.Error()
				result.Corrupt++
				opts.Logger.Warn("corrupt recording", "id", rid, "error", err)
			}
			result.Checked++
			result.Results = append(result.Results, entry)
		}

		if result.Corrupt > 0 && f.Format == "json" {
			if err := f.Error(CodeCorrupt, "digest verification failed", result); err != nil {
				return err
			}
		} else if err := f.Render(result, func(w io.Writer) error {
			return outputVerifyText(w, result)
		}); err != nil {
			return err
		}

		if result.Corrupt > 0 {
			return NewExitError(ExitFailure, fmt.Sprintf("%d corrupt recording(s)", result.Corrupt))
		}
		return nil
	})
}

func verifyTargets(ctx context.Context, s *sqlite.Store, id string) ([]string, error) {
	if id != "" {
		return []string{id}, nil
	}
	ids, err := s.ListRecordings(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to list recordings", err)
	}
	return ids, nil
}

func loadError(id string, err error) error {
	if errors.Is(err, cassette.ErrNotFound) {
		return WrapExitError(ExitCommandError, fmt.Sprintf("recording %s not found", id), err)
	}
	return WrapExitError(ExitCommandError, "failed to verify recording", err)
}

func outputVerifyText(w io.Writer, r VerifyResult) error {
	if r.Checked == 0 {
		_, err := fmt.Fprintln(w, "No recordings to verify")
		return err
	}
	for _, e := range r.Results {
		if e.OK {
			fmt.Fprintf(w, "ok      %s\n", e.ID)
		} else {
			fmt.Fprintf(w, "CORRUPT %s\n", e.ID)
		}
	}
	fmt.Fprintln(w)
	if r.Corrupt == 0 {
		fmt.Fprintf(w, "All %d recording(s) intact\n", r.Checked)
		return nil
	}
	fmt.Fprintf(w, "%d of %d recording(s) corrupt\n", r.Corrupt, r.Checked)
	return nil
}
