package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
)

func newMetadataCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "metadata",
		Aliases: []string{"meta"},
		Short:   "Inspect datasets, tables and schemas",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "datasets",
		Short: "List datasets (BigQuery) or schemas (Snowflake, Postgres)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				names, err := svc.ListDatasets(ctx)
				if err != nil {
					return err
				}
				return printFrame(cmd.OutOrStdout(), stringsFrame("dataset", names), opts.output)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tables [dataset]",
		Short: "List the tables of a dataset (default from profile)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				dataset := svc.DefaultDataset()
				if len(args) == 1 {
					dataset = args[0]
				}
				names, err := svc.ListTables(ctx, dataset)
				if err != nil {
					return err
				}
				return printFrame(cmd.OutOrStdout(), stringsFrame("table", names), opts.output)
			})
		},
	})

	var acceptCapitals bool
	schemaCmd := &cobra.Command{
		Use:   "schema <table> | schema <dataset> <table>",
		Short: "Show the columns of a table",
		Long:  "Show the columns of a table. With -o json the output is a schema file for write --schema.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, table := "", args[0]
			if len(args) == 2 {
				dataset, table = args[0], args[1]
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				ref, err := svc.ResolveTable(dataset, table, acceptCapitals)
				if err != nil {
					return err
				}
				info, err := svc.TableInfo(ctx, ref)
				if err != nil {
					return err
				}
				if err := printSchema(cmd.OutOrStdout(), info.Schema, opts.output); err != nil {
					return err
				}
				if opts.output == formatTable && info.RowCount >= 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s rows\n", ref, humanize.Comma(info.RowCount))
				}
				return nil
			})
		},
	}
	schemaCmd.Flags().BoolVar(&acceptCapitals, "accept-capitals", false, acceptCapitalsUsage)
	cmd.AddCommand(schemaCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "databases",
		Short: "List databases (Snowflake)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				names, err := svc.ListDatabases(ctx)
				if err != nil {
					return err
				}
				return printFrame(cmd.OutOrStdout(), stringsFrame("database", names), opts.output)
			})
		},
	})

	return cmd
}
