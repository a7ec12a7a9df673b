package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/app"
	"github.com/roach88/fieldsync/internal/queue"
	"github.com/roach88/fieldsync/internal/submit"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Data string

	// AppOptions allows overriding runtime wiring (for testing).
	AppOptions app.Options
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit [ticket.json]",
		Short: "Submit a ticket, queueing it when offline",
		Long: `Submit one JSON ticket to the configured endpoint.

The ticket is read from --data, the named file, or stdin. When the
endpoint cannot be reached the ticket is stored in the local queue and
delivered later by "fieldsync serve" or "fieldsync drain".

Example:
  fieldsync submit ticket.json
  echo '{"title":"pump 4 leaking"}' | fieldsync submit
  fieldsync submit --data '{"title":"pump 4 leaking"}' --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "ticket JSON (instead of a file or stdin)")

	return cmd
}

func runSubmit(opts *SubmitOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	payload, err := readTicket(opts, args, cmd)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "failed to read ticket", err)
	}

	a, err := openApp(opts.RootOptions, formatter, opts.AppOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Submitter.Submit(cmd.Context(), payload)
	switch {
	case errors.Is(err, submit.ErrInvalidPayload):
		return formatter.Fail(ExitCommandError, ErrCodeInput, "ticket is not valid JSON", err)
	case queue.IsStorageUnavailable(err):
		return formatter.Fail(ExitFailure, ErrCodeStorage, "ticket was not sent and could not be stored", err)
	case err != nil:
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "submit failed", err)
	}

	return formatter.Success(result, func(w io.Writer) {
		switch result.Outcome {
		case submit.OutcomeDeliveredLive:
			fmt.Fprintf(w, "Delivered %s\n", result.ID)
		case submit.OutcomeQueuedForSync:
			fmt.Fprintf(w, "Queued %s for sync\n", result.ID)
			if !result.BackgroundSync {
				fmt.Fprintln(w, `Background sync is not running; run "fieldsync drain" once online.`)
			}
		}
	})
}

func readTicket(opts *SubmitOptions, args []string, cmd *cobra.Command) ([]byte, error) {
	if opts.Data != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("--data and a ticket file are mutually exclusive")
		}
		return []byte(opts.Data), nil
	}
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}
