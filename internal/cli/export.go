package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ExportOptions holds options for the export command.
type ExportOptions struct {
	*RootOptions
	Out string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <recording-id>",
		Short: "Export a recording as YAML",
		Long: `Export a recording as a YAML document with its id, category,
metadata and entries. The document is written to stdout unless --out
names a file.

Exit codes:
  0 - Success
  1 - Recording is corrupt
  2 - Command error (unknown recording, unwritable output)

Examples:
  tapedeck export checkout/0190c1d2-...
  tapedeck export checkout/0190c1d2-... --out checkout.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the YAML document to this file")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command, id string) error {
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

		data, err := marshalExport(result)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to encode recording", err)
		}

		if opts.Out == "" {
			_, err := cmd.OutOrStdout().Write(data)
			return err
		}

		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write export", err)
		}
		opts.Logger.Debug("exported recording", "id", id, "path", opts.Out, "bytes", len(data))
		return opts.formatter(cmd).Success(fmt.Sprintf("Exported %s to %s", id, opts.Out))
	})
}

// marshalExport encodes r as YAML with recorded numbers as YAML numbers.
func marshalExport(r ShowResult) ([]byte, error) {
	r.Metadata = plainValue(r.Metadata).(map[string]any)
	entries := make([]EntryView, len(r.Entries))
	for i, e := range r.Entries {
		e.Value = plainValue(e.Value)
		entries[i] = e
	}
	r.Entries = entries
	return yaml.Marshal(r)
}

// plainValue replaces json.Number with int64 or float64, recursively.
func plainValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = plainValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = plainValue(val)
		}
		return out
	default:
		return v
	}
}
