package commands

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/huykn/dataquery/transfer"
)

func (c *CLI) newExportCmd() *cobra.Command {
	var (
		format   string
		output   string
		pageSize int
		maxItems int
	)

	cmd := &cobra.Command{
		Use:   "export <resource>",
		Short: "Write every record of a resource as CSV, JSON or YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			writer, err := transfer.WriterFor(formatOf(format, output))
			if err != nil {
				return err
			}

			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			var out io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			job, err := s.client.Transfer.ExportTo(cmd.Context(), out, writer, transfer.ExportOptions{
				Resource:     args[0],
				PageSize:     pageSize,
				MaxItemCount: maxItems,
			})
			if err != nil {
				return err
			}
			if output != "" {
				printSummary(cmd.OutOrStdout(), job)
			}
			if job.Truncated() {
				cmd.PrintErrf("export of %s truncated at %d records\n", args[0], maxItems)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: csv, json or yaml (default from extension, else json)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().IntVar(&pageSize, "page-size", transfer.DefaultPageSize, "Records read per page")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "Stop after this many records (0 means no limit)")
	return cmd
}
