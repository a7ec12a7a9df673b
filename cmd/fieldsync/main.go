package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/roach88/fieldsync/internal/cli"
)

func main() {
	// FIELDSYNC_* settings may come from a .env file next to the binary's
	// working directory; a missing file is fine.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already reported in the selected output format.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
