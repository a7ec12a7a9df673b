package cli

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/app"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Retries uint
	Include bool

	// AppOptions allows overriding runtime wiring (for testing).
	AppOptions app.Options
}

// CacheWarmResult is the output of cache warm.
type CacheWarmResult struct {
	Namespace string `json:"namespace"`
	Entries   int    `json:"entries"`
}

// CacheGetResult is the JSON output of cache get.
type CacheGetResult struct {
	URL    string      `json:"url"`
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   string      `json:"body"`
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the offline response cache",
	}

	warm := &cobra.Command{
		Use:   "warm",
		Short: "Pre-populate the cache from the configured manifest",
		Long: `Fetch every manifest path from the origin and store it, then delete
entries left by other cache namespaces.

Example:
  fieldsync cache warm
  fieldsync cache warm --retries 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheWarm(opts, cmd)
		},
	}
	warm.Flags().UintVar(&opts.Retries, "retries", 3, "attempts before giving up (0 = config policy)")

	get := &cobra.Command{
		Use:   "get <path>",
		Short: "Fetch a path through the cache",
		Long: `Fetch a path on the origin through the response cache and print the
body. A cached copy is served without touching the network.

Example:
  fieldsync cache get /index.html
  fieldsync cache get / --include`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheGet(opts, args[0], cmd)
		},
	}
	get.Flags().BoolVarP(&opts.Include, "include", "i", false, "print status and headers before the body")

	cmd.AddCommand(warm, get)
	return cmd
}

func runCacheWarm(opts *CacheOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(opts.RootOptions, formatter, opts.AppOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	policy := a.RetryPolicy()
	if opts.Retries > 0 {
		policy.MaxTries = opts.Retries
	}
	if err := a.Dispatcher.Install(cmd.Context(), policy); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeNetwork, "failed to warm cache", err)
	}

	entries, err := a.Cache.Count(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStorage, "failed to count cache entries", err)
	}

	result := CacheWarmResult{Namespace: a.Cache.Namespace(), Entries: entries}
	return formatter.Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Cached %d entries in namespace %s\n", result.Entries, result.Namespace)
	})
}

func runCacheGet(opts *CacheOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	a, err := openApp(opts.RootOptions, formatter, opts.AppOptions)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := a.Cache.Resolve(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid path", err)
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInput, "invalid path", err)
	}

	resp, err := a.Dispatcher.Fetch(cmd.Context(), req)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeNetwork, "origin unreachable and no cached copy", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeNetwork, "failed to read response", err)
	}

	result := CacheGetResult{URL: target.String(), Status: resp.StatusCode, Header: resp.Header, Body: string(body)}
	return formatter.Success(result, func(w io.Writer) {
		if opts.Include {
			fmt.Fprintf(w, "%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
			keys := make([]string, 0, len(resp.Header))
			for k := range resp.Header {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				for _, v := range resp.Header[k] {
					fmt.Fprintf(w, "%s: %s\n", k, v)
				}
			}
			fmt.Fprintln(w)
		}
		w.Write(body)
	})
}
