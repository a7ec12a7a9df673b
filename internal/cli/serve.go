package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/fieldsync/internal/app"
	"github.com/roach88/fieldsync/internal/httpapi"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string

	// AppOptions allows overriding runtime wiring (for testing).
	// Background is always enabled.
	AppOptions app.Options
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local API with background sync",
		Long: `Run the long-lived fieldsync agent.

The agent warms the response cache, serves the local HTTP API, and
delivers queued tickets in the background whenever the endpoint is
reachable.

Example:
  fieldsync serve
  fieldsync serve --addr 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	appOpts := opts.AppOptions
	appOpts.Background = true
	a, err := openApp(opts.RootOptions, formatter, appOpts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Error("close_failed", "error", closeErr)
		}
	}()

	addr := a.Config.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to listen", err)
	}

	origin, err := url.Parse(a.Config.Cache.Origin)
	if err != nil {
		ln.Close()
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "invalid cache origin", err)
	}
	api := &httpapi.Server{
		Submitter:      a.Submitter,
		Queue:          a.Queue,
		Drainer:        a.Coordinator,
		Fetcher:        a.Dispatcher,
		Origin:         origin,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
	}
	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	syncDone, err := a.Start(ctx)
	if err != nil {
		ln.Close()
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to start background sync", err)
	}
	g.Go(func() error {
		return <-syncDone
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", ln.Addr())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	g.Go(func() error {
		// The cache is a convenience; serving starts before it is warm.
		if err := a.Install(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("install_failed", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		serveErr := make(chan error, 1)
		go func() { serveErr <- srv.Serve(ln) }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown http server: %w", err)
			}
			return nil
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve http: %w", err)
		}
	})

	if err := g.Wait(); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "server error", err)
	}

	slog.Info("stopped")
	return nil
}
