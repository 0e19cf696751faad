package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/recording"
)

// ShowResult is one recording laid out for display.
type ShowResult struct {
	ID       string         `json:"id" yaml:"id"`
	Category string         `json:"category" yaml:"category"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
	Entries  []EntryView    `json:"entries" yaml:"entries"`
}

// EntryView is one stored entry.
type EntryView struct {
	Key        string         `json:"key" yaml:"key"`
	Kind       recording.Kind `json:"kind" yaml:"kind"`
	Value      any            `json:"value" yaml:"value"`
	Structured bool           `json:"structured,omitempty" yaml:"structured,omitempty"`
	Deferred   bool           `json:"deferred,omitempty" yaml:"deferred,omitempty"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <recording-id>",
		Short: "Show the entries and metadata of a recording",
		Long: `Show every stored entry of a recording in key order, followed by
its metadata.

Exit codes:
  0 - Success
  1 - Recording is corrupt
  2 - Command error (unknown recording, backend unavailable)

Examples:
  tapedeck show checkout/0190c1d2-...
  tapedeck show checkout/0190c1d2-... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runShow(opts *RootOptions, cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	return opts.withStore(ctx, func(st store) error {
		rec, err := loadRecording(ctx, st, id)
		if err != nil {
			return err
		}
		result, err := newShowResult(rec)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read recording", err)
		}
		return opts.formatter(cmd).Render(result, func(w io.Writer) error {
			return outputShowText(w, result)
		})
	})
}

func newShowResult(rec recording.Recording) (ShowResult, error) {
	result := ShowResult{
		ID:       rec.ID(),
		Category: rec.Category(),
		Metadata: rec.Metadata(),
		Entries:  []EntryView{},
	}
	for _, key := range rec.Keys() {
		entry, err := rec.GetData(key)
		if err != nil {
			return ShowResult{}, err
		}
		result.Entries = append(result.Entries, EntryView{
			Key:        key,
			Kind:       entry.Kind,
			Value:      entry.Value,
			Structured: entry.Structured,
			Deferred:   entry.Deferred,
		})
	}
	return result, nil
}

func outputShowText(w io.Writer, r ShowResult) error {
	fmt.Fprintf(w, "Recording: %s\n", r.ID)
	fmt.Fprintf(w, "Category:  %s\n", r.Category)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Entries (%d):\n", len(r.Entries))
	for _, e := range r.Entries {
		value, err := canon.MarshalString(e.Value)
		if err != nil {
			return err
		}
		flags := ""
		if e.Deferred {
			flags += " deferred"
		}
		if e.Structured {
			flags += " structured"
		}
		fmt.Fprintf(w, "  %s\n    %s%s: %s\n", e.Key, e.Kind, flags, value)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Metadata:")
	for _, k := range canon.SortedKeys(r.Metadata) {
		value, err := canon.MarshalString(r.Metadata[k])
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s: %s\n", k, value)
	}
	return nil
}
