package main

import (
	"fmt"

	"github.com/dd0wney/netharness/pkg/protocol"
	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/dd0wney/netharness/pkg/workflow"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <protocol>",
		Short: "Check a protocol without running it",
		Long: `Check a protocol without running it.

Every sweep point is resolved and every extension is built with that
point's properties, so a protocol that validates will not fail on
configuration part way through a sweep.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := protocol.Load(args[0])
			if err != nil {
				return err
			}
			if err := workflow.Check(registry.Default(), p); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, p.Summary())
			fmt.Fprintf(out, "%s: ok\n", args[0])
			return nil
		},
	}
}
