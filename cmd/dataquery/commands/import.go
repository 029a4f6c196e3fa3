package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/huykn/dataquery/transfer"
)

func (c *CLI) newImportCmd() *cobra.Command {
	var (
		format      string
		concurrency int
		perSecond   float64
	)

	cmd := &cobra.Command{
		Use:   "import <resource> <file>",
		Short: "Create or update records from a CSV, JSON or YAML file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resource, path := args[0], args[1]

			parser, err := transfer.ParserFor(formatOf(format, path))
			if err != nil {
				return err
			}

			in, err := os.Open(path)
			if err != nil {
				return err
			}
			defer in.Close()

			s, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			job, err := s.client.Transfer.Import(cmd.Context(), in, transfer.ImportOptions{
				Resource:    resource,
				Parser:      parser,
				Concurrency: concurrency,
				RateLimit:   rate.Limit(perSecond),
			})
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), job)

			if job.Summary().Succeeded > 0 {
				if err := s.save(c.dataPath); err != nil {
					return err
				}
			}
			if job.Status() == transfer.JobFailed {
				return fmt.Errorf("import of %s failed", resource)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Input format: csv, json or yaml (default from extension)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Records written in parallel")
	cmd.Flags().Float64Var(&perSecond, "rate", 0, "Maximum records written per second (0 means unlimited)")
	return cmd
}
