package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/app"
)

// DrainOptions holds flags for the drain command.
type DrainOptions struct {
	*RootOptions

	// AppOptions allows overriding runtime wiring (for testing).
	AppOptions app.Options
}

// NewDrainCommand creates the drain command.
func NewDrainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DrainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver every queued ticket now",
		Long: `Attempt delivery of every queued ticket once.

Delivered tickets are removed from the queue; failed ones stay queued.
Exits with status 1 when any ticket is still queued afterwards.

Example:
  fieldsync drain
  fieldsync drain --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrain(opts, cmd)
		},
	}

	return cmd
}

func runDrain(opts *DrainOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(opts.RootOptions, formatter, opts.AppOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Coordinator.Drain(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStorage, "failed to read queue", err)
	}

	if err := formatter.Success(report, func(w io.Writer) {
		if report.Attempted == 0 {
			fmt.Fprintln(w, "Nothing to deliver")
			return
		}
		fmt.Fprintf(w, "Attempted %d, delivered %d, failed %d\n",
			report.Attempted, len(report.Delivered), len(report.Failed))
		if len(report.Failed) > 0 {
			fmt.Fprintf(w, "Still queued: %s\n", strings.Join(report.Failed, ", "))
		}
	}); err != nil {
		return err
	}

	if !report.Complete() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %d tickets still queued", ErrCodeIncomplete, len(report.Failed)))
	}
	return nil
}
