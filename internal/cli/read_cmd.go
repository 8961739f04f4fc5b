package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

func newReadCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a table or a query result",
	}
	cmd.AddCommand(newReadTableCmd(opts))
	cmd.AddCommand(newReadSQLCmd(opts))
	return cmd
}

func newReadTableCmd(opts *rootOptions) *cobra.Command {
	var (
		dataset        string
		fields         []string
		selectExpr     string
		where          string
		limit          int
		out            string
		acceptCapitals bool
	)

	cmd := &cobra.Command{
		Use:   "table <table>",
		Short: "Read rows of a table",
		Example: `  bqpipe read table events --where "experiment_name = 'pricing'" --limit 100
  bqpipe read table analytics.events --fields experiment_name,account_id -o csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				ref, err := svc.ResolveTable(dataset, args[0], acceptCapitals)
				if err != nil {
					return err
				}
				f, err := svc.FetchTable(ctx, ref, warehouse.FetchOptions{
					Fields: fields,
					Select: selectExpr,
					Where:  where,
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				return opts.emit(cmd, f, out)
			})
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset or schema (default from profile)")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Columns to read")
	cmd.Flags().StringVar(&selectExpr, "select", "", "Raw select list, overrides --fields")
	cmd.Flags().StringVar(&where, "where", "", "Filter, with or without a leading WHERE")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to read (0 reads all)")
	cmd.Flags().StringVar(&out, "out", "", "Write rows to a file instead of stdout")
	cmd.Flags().BoolVar(&acceptCapitals, "accept-capitals", false, acceptCapitalsUsage)
	return cmd
}

func newReadSQLCmd(opts *rootOptions) *cobra.Command {
	var (
		file string
		out  string
	)

	cmd := &cobra.Command{
		Use:   "sql [query]",
		Short: "Run a query and print its result",
		Long:  "Run a query given as argument, read from --file, or read from stdin when the argument is \"-\".",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := queryText(cmd, args, file)
			if err != nil {
				return err
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				f, err := svc.Query(ctx, query)
				if err != nil {
					return err
				}
				return opts.emit(cmd, f, out)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file")
	cmd.Flags().StringVar(&out, "out", "", "Write rows to a file instead of stdout")
	return cmd
}

func queryText(cmd *cobra.Command, args []string, file string) (string, error) {
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("pass either a query or --file, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		return string(data), nil
	case len(args) == 1 && args[0] == "-":
		return readAll(cmd.InOrStdin(), "query from stdin")
	case len(args) == 1:
		return args[0], nil
	default:
		return "", errors.New("no query given")
	}
}

// emit prints f, or writes it to out when set.
func (o *rootOptions) emit(cmd *cobra.Command, f *frame.Frame, out string) error {
	if out == "" {
		return printFrame(cmd.OutOrStdout(), f, o.output)
	}
	size, err := writeFrameFile(out, f, o.output)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s rows (%s) to %s\n",
		humanize.Comma(int64(f.NumRows())), humanize.Bytes(uint64(size)), strings.TrimSpace(out))
	return nil
}
