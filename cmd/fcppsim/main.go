// Command fcppsim runs a simulated field-calculus net over a
// plain-text graph description and logs per-round aggregate values.
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
		Use:   "fcppsim",
		Short: "Run a simulated field-calculus net",
		Long: `fcppsim runs a population of devices executing an aggregate program
over a simulated, delay/connectivity-modeled network, logging per-round
aggregate values to a plain-text sink.

  fcppsim run --program gossip-min --nodes nodes.txt --arcs arcs.txt --rounds 10
  fcppsim version`,
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
	case errors.Is(err, errIOFailure):
		return exitIO
	default:
		return exitConfiguration
	}
}
