// Command fcppd runs a single field-calculus device against a real
// neighbour-exchange transport: one device,
// one aggregate program, one Redis-backed Connector, looping on
// wall-clock time instead of a simulated scheduler.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fcpp-project/fcpp-go/pkg/util"
	"github.com/fcpp-project/fcpp-go/pkg/version"
)

// Exit codes, stable for scripting.
const (
	exitOK            = 0
	exitConfiguration = 1
	exitIO            = 2
	exitInvariant     = 3
)

var verboseFlag bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "fcppd",
		Short: "Run a single field-calculus device against a real transport",
		Long: `fcppd runs one device executing an aggregate program against a
Redis-backed Connector, optionally reached
through an SSH tunnel.

  fcppd run --uid 1 --addr 10.0.0.5:6379 --program gossip-min --value 5
  fcppd version`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verboseFlag {
				_ = util.SetLogLevel("debug")
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		newRunCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(version.Info())
			},
		},
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error to an exit code via its
// sentinel-error chain.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, util.ErrInvariant):
		return exitInvariant
	case errors.Is(err, util.ErrConfiguration):
		return exitConfiguration
	case errors.Is(err, errDialFailure):
		return exitIO
	default:
		return exitConfiguration
	}
}
