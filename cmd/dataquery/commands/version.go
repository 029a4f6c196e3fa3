package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huykn/dataquery"
)

func (c *CLI) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		Run: func(cmd *cobra.Command, _ []string) {
			info := dataquery.GetVersionInfo()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dataquery version %s (%s)\n", info.Version, info.GoVersion)
		},
	}
}
