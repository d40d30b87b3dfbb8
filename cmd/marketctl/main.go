// Command marketctl is the operator CLI for the marketplace catalog: it
// browses through the data gateway, seeds fixture data into Postgres, and
// checks gateway health.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

// Testable variables for main()
var exitFn = os.Exit

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		exitFn(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "marketctl",
		Short:         "Operator tooling for the marketplace catalog",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newBrowseCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newHealthCmd())
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
