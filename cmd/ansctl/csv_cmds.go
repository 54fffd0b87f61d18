package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spec-kit/incident-service/internal/bootstrap"
	"github.com/spec-kit/incident-service/internal/service"
)

func importCmd(c *cli) *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import tickets from a CSV export of the request form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return c.withStore(cmd.Context(), func(b *bootstrap.Backend) error {
				svc := service.NewImportService(b.Store, c.engine, nil, c.logger, nil)
				result, err := svc.ImportCSV(cmd.Context(), actor, f)
				if err != nil {
					return err
				}
				if c.json {
					return c.printJSON(result)
				}
				fmt.Fprintf(c.out, "imported %d, skipped %d, failed %d\n", result.Imported, result.Skipped, result.Failed)
				if len(result.Errors) > 0 {
					tw := c.table(table.Row{"Line", "Key", "Error"})
					for _, e := range result.Errors {
						tw.AppendRow(table.Row{e.Line, e.Key, e.Message})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "ansctl", "actor recorded in ticket history")
	return cmd
}

func exportCmd(c *cli) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every ticket with its SLA fields as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			var w io.Writer = c.out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return c.withStore(cmd.Context(), func(b *bootstrap.Backend) error {
				svc := service.NewImportService(b.Store, c.engine, nil, c.logger, nil)
				n, err := svc.ExportCSV(cmd.Context(), w)
				if err != nil {
					return err
				}
				if w != c.out {
					fmt.Fprintf(c.out, "exported %d tickets to %s\n", n, output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
