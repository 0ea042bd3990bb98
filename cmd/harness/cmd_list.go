package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dd0wney/netharness/pkg/registry"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [kind]",
		Short: "List the available extensions and their properties",
		Long: `List the available extensions and their properties.

Kinds: graph, population, experiment, integration. Without a kind every
catalogue is printed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds := registry.Kinds
			if len(args) == 1 {
				kind := registry.Kind(args[0])
				if !knownKind(kind) {
					return fmt.Errorf("unknown kind %q (want one of %s)", args[0], kindNames())
				}
				kinds = []registry.Kind{kind}
			}
			brief, _ := cmd.Flags().GetBool("brief")
			writeCatalogue(cmd.OutOrStdout(), registry.Default(), kinds, brief)
			return nil
		},
	}
	cmd.Flags().Bool("brief", false, "Only print extension ids")
	return cmd
}

func knownKind(k registry.Kind) bool {
	for _, known := range registry.Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func kindNames() string {
	names := make([]string, len(registry.Kinds))
	for i, k := range registry.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func writeCatalogue(w io.Writer, r *registry.Registry, kinds []registry.Kind, brief bool) {
	for i, kind := range kinds {
		if i > 0 && !brief {
			fmt.Fprintln(w)
		}
		if !brief {
			fmt.Fprintf(w, "%s:\n", kind)
		}
		for _, p := range r.List(kind) {
			if brief {
				fmt.Fprintf(w, "%s\t%s\n", kind, p.ID)
				continue
			}
			fmt.Fprintf(w, "  %-18s %s\n", p.ID, p.Summary)
			for _, prop := range p.Properties {
				fmt.Fprintf(w, "      %-20s %-6s %s%s\n", prop.Key, prop.Type, propertyDefault(prop), prop.Doc)
			}
		}
	}
}

func propertyDefault(p registry.Property) string {
	switch {
	case p.Required:
		return "(required) "
	case p.Default != nil:
		return fmt.Sprintf("(default %v) ", p.Default)
	default:
		return ""
	}
}
