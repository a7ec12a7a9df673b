package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/app"
	"github.com/roach88/fieldsync/internal/config"
	"github.com/roach88/fieldsync/internal/queue"
)

// newFormatter builds the formatter for cmd's output streams.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openApp loads the config and opens the runtime. Failures are reported
// through formatter.
func openApp(opts *RootOptions, formatter *OutputFormatter, appOpts app.Options) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.ConfigPath != "" {
		formatter.VerboseLog("using config %s", opts.ConfigPath)
	}
	formatter.VerboseLog("data dir %s", cfg.DataDir)

	a, err := app.New(cfg, appOpts)
	if err != nil {
		code := ErrCodeGeneric
		if queue.IsStorageUnavailable(err) {
			code = ErrCodeStorage
		}
		return nil, formatter.Fail(ExitCommandError, code, "failed to open data dir", err)
	}
	return a, nil
}
