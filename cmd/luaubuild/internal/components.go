package internal

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goplus/luaubuild/internal/component"
)

var componentsCmd = &cobra.Command{
	Use:   "components",
	Short: "List the Luau components in build order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printComponents(cmd.OutOrStdout(), component.Luau())
	},
}

func init() {
	rootCmd.AddCommand(componentsCmd)
}

func printComponents(w io.Writer, table component.Table) error {
	if err := table.Validate(); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLIBRARY\tDEPS\tSOURCES")
	for _, c := range table {
		var srcs []string
		for _, p := range c.Parts {
			srcs = append(srcs, p.Source)
		}
		name := c.Name
		if c.Gate == component.Codegen {
			name += " (codegen)"
		}
		deps := strings.Join(c.Deps, ",")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, c.Library, deps, strings.Join(srcs, ","))
	}
	return tw.Flush()
}
