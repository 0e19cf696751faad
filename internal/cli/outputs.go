package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tapedeck/internal/canon"
	"github.com/roach88/tapedeck/internal/tape"
)

// OutputsResult is the JSON payload of the outputs command.
type OutputsResult struct {
	ID      string        `json:"id"`
	Outputs []tape.Output `json:"outputs"`
}

// NewOutputsCommand creates the outputs command.
func NewOutputsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outputs <recording-id>",
		Short: "List the recorded outputs of a recording",
		Long: `List the outputs a replay of the recording is compared against:
intercepted output arguments and the operation's own output.

Exit codes:
  0 - Success
  1 - Recording is corrupt
  2 - Command error (unknown recording, backend unavailable)

Examples:
  tapedeck outputs checkout/0190c1d2-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutputs(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runOutputs(opts *RootOptions, cmd *cobra.Command, id string) error {
	ctx := cmd.Context()
	return opts.withStore(ctx, func(st store) error {
		rec, err := loadRecording(ctx, st, id)
		if err != nil {
			return err
		}
		outputs, err := tape.RecordedOutputs(rec)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read outputs", err)
		}

		result := OutputsResult{ID: rec.ID(), Outputs: outputs}
		return opts.formatter(cmd).Render(result, func(w io.Writer) error {
			if len(outputs) == 0 {
				_, err := fmt.Fprintln(w, "No outputs recorded")
				return err
			}
			for _, o := range outputs {
				value, err := canon.MarshalString(o.Value)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s = %s\n", o.Key, value)
			}
			return nil
		})
	})
}
