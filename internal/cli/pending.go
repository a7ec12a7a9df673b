package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/app"
	"github.com/roach88/fieldsync/internal/queue"
)

// PendingOptions holds flags for the pending command.
type PendingOptions struct {
	*RootOptions

	// AppOptions allows overriding runtime wiring (for testing).
	AppOptions app.Options
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PendingOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List tickets waiting for delivery",
		Long: `List the tickets in the local queue, oldest first.

Example:
  fieldsync pending
  fieldsync pending --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(opts, cmd)
		},
	}

	return cmd
}

func runPending(opts *PendingOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(opts.RootOptions, formatter, opts.AppOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.Queue.GetAll(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStorage, "failed to read queue", err)
	}

	tickets := queue.Summaries(records)

	return formatter.Success(tickets, func(w io.Writer) {
		if len(tickets) == 0 {
			fmt.Fprintln(w, "No pending tickets")
			return
		}
		fmt.Fprintf(w, "%-36s  %-20s  %s\n", "ID", "CREATED", "BYTES")
		for _, t := range tickets {
			fmt.Fprintf(w, "%-36s  %-20s  %d\n", t.ID, t.CreatedAt.Format(time.RFC3339), t.Bytes)
		}
		fmt.Fprintf(w, "%d pending\n", len(tickets))
	})
}
