// Command harness runs network-integration benchmark protocols: it builds
// synthetic true networks, simulates noisy experiments on them, integrates
// the evidence and scores the result against the truth.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.3.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "harness",
		Short: "Benchmark harness for network integration methods",
		Long: `harness executes protocols describing a population of true networks,
noisy evidential experiments and an integration method, sweeping protocol
variables and recording how far the integrated network is from the truth.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default from HARNESS_LOG_LEVEL/LOG_LEVEL, else info)")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newListCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "harness version %s\n", version)
		},
	}
}

// printError writes err followed by every error it wraps.
func printError(w io.Writer, err error) {
	chain := causeChain(err)
	fmt.Fprintf(w, "Error: %s\n", chain[0])
	for _, cause := range chain[1:] {
		fmt.Fprintf(w, "  caused by: %s\n", cause)
	}
}

// causeChain lists the messages of err and its causes, outermost first.
// Joined errors contribute their first member.
func causeChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		switch u := err.(type) {
		case interface{ Unwrap() error }:
			err = u.Unwrap()
		case interface{ Unwrap() []error }:
			if errs := u.Unwrap(); len(errs) > 0 {
				err = errs[0]
			} else {
				err = nil
			}
		default:
			err = nil
		}
	}
	return chain
}
