package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tapedeck/internal/cassette/sqlite"
)

// ListOptions holds options for the list command.
type ListOptions struct {
	*RootOptions
	Category string
}

// ListResult is the JSON payload of the list command.
type ListResult struct {
	Recordings []sqlite.Summary `json:"recordings"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored recordings",
		Long: `List stored recordings in save order.

The SQLite backend reports category, digest and save time for each
recording. Other backends report ids only.

Exit codes:
  0 - Success
  2 - Command error (bad config, backend unavailable)

Examples:
  tapedeck list
  tapedeck list --category checkout --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only list recordings of this category")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	return opts.withStore(ctx, func(st store) error {
		var summaries []sqlite.Summary
		if s, ok := st.(*sqlite.Store); ok {
			var err error
			summaries, err = s.Summaries(ctx, opts.Category)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list recordings", err)
			}
		} else {
			ids, err := st.ListRecordings(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list recordings", err)
			}
			summaries = summariesFromIDs(ids, opts.Category)
		}

		opts.Logger.Debug("listed recordings", "count", len(summaries), "category", opts.Category)
		return opts.formatter(cmd).Render(ListResult{Recordings: summaries}, func(w io.Writer) error {
			return outputListText(w, summaries, opts.Verbose)
		})
	})
}

// summariesFromIDs derives summaries from "<category>/<uuid>" ids.
func summariesFromIDs(ids []string, category string) []sqlite.Summary {
	out := []sqlite.Summary{}
	for _, id := range ids {
		cat := id
		if i := strings.LastIndex(id, "/"); i >= 0 {
			cat = id[:i]
		}
		if category != "" && cat != category {
			continue
		}
		out = append(out, sqlite.Summary{ID: id, Category: cat})
	}
	return out
}

func outputListText(w io.Writer, summaries []sqlite.Summary, verbose bool) error {
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No recordings found")
		return err
	}

	for _, s := range summaries {
		switch {
		case verbose && s.Digest != "":
			fmt.Fprintf(w, "%s\t%s\t%d bytes\t%s\n", s.ID, s.SavedAt, s.Bytes, s.Digest)
		case s.SavedAt != "":
			fmt.Fprintf(w, "%s\t%s\n", s.ID, s.SavedAt)
		default:
			fmt.Fprintln(w, s.ID)
		}
	}
	fmt.Fprintf(w, "\n%d recording(s)\n", len(summaries))
	return nil
}
