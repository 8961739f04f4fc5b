package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/joacominatel/bqpipe/internal/app"
	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

func newWriteCmd(opts *rootOptions) *cobra.Command {
	var (
		req        app.WriteRequest
		input      string
		schemaPath string
		pullSchema bool
		delimiter  string
		nullValues []string
	)

	cmd := &cobra.Command{
		Use:   "write <table>",
		Short: "Upload a CSV file into a table",
		Example: `  bqpipe write events --input events.csv --create
  bqpipe write raw.clicks --input - --mode truncate < clicks.csv
  bqpipe write experiment_sample --input sample.csv --create --schema schema.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return errors.New("--input is required")
			}
			if schemaPath != "" && pullSchema {
				return errors.New("--schema and --pull-schema are mutually exclusive")
			}
			csvOpts := frame.CSVOptions{NullValues: nullValues}
			if delimiter != "" {
				r, size := utf8.DecodeRuneInString(delimiter)
				if size != len(delimiter) {
					return fmt.Errorf("delimiter %q must be a single character", delimiter)
				}
				csvOpts.Comma = r
			}
			if schemaPath != "" {
				schema, err := warehouse.LoadSchemaFile(schemaPath)
				if err != nil {
					return err
				}
				req.Schema = schema
				csvOpts.Kinds = schemaKinds(schema)
			}
			req.Table = args[0]

			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				if pullSchema {
					ref, err := svc.ResolveTable(req.Dataset, req.Table, req.AcceptCapitalLetters)
					if err != nil {
						return err
					}
					schema, err := svc.GetSchema(ctx, ref)
					if err != nil {
						return fmt.Errorf("pull schema of %s: %w", ref, err)
					}
					csvOpts.Kinds = schemaKinds(schema)
				}

				f, size, err := readInput(cmd, input, csvOpts)
				if err != nil {
					return err
				}
				res, err := svc.Write(ctx, f, req)
				if err != nil {
					return err
				}

				verb := "Appended"
				switch {
				case res.Created:
					verb = "Created table and wrote"
				case res.Disposition == warehouse.WriteTruncate:
					verb = "Replaced table contents with"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s rows (%s read) into %s in %s\n",
					verb, humanize.Comma(res.Rows), humanize.Bytes(uint64(size)), res.Table, res.Duration.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV file to upload (- for stdin)")
	cmd.Flags().StringVarP(&req.Dataset, "dataset", "d", "", "Dataset or schema (default from profile)")
	cmd.Flags().StringVar(&req.InsertMode, "mode", "append", "Insert mode: append or truncate")
	cmd.Flags().BoolVar(&req.CreateIfMissing, "create", false, "Create the table when it does not exist")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file (YAML or JSON) used for the table")
	cmd.Flags().BoolVar(&pullSchema, "pull-schema", false, "Parse CSV columns with the existing table's types")
	cmd.Flags().BoolVar(&req.AcceptIncompleteSchema, "accept-incomplete", false, "Fill NULLABLE table columns missing from the file with NULL")
	cmd.Flags().BoolVar(&req.AcceptCapitalLetters, "accept-capitals", false, acceptCapitalsUsage)
	cmd.Flags().BoolVar(&req.SkipAuditColumn, "no-audit-column", false, "Do not add or stamp the audit column")
	cmd.Flags().StringVar(&delimiter, "delimiter", "", "CSV field delimiter (default ,)")
	cmd.Flags().StringSliceVar(&nullValues, "null-value", nil, "Cell values read as NULL besides the empty string")
	return cmd
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		dataset        string
		schemaPath     string
		acceptCapitals bool
		noAudit        bool
	)

	cmd := &cobra.Command{
		Use:   "create <table>",
		Short: "Create an empty table from a schema file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				return errors.New("--schema is required")
			}
			schema, err := warehouse.LoadSchemaFile(schemaPath)
			if err != nil {
				return err
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service) error {
				ref, err := svc.ResolveTable(dataset, args[0], acceptCapitals)
				if err != nil {
					return err
				}
				if err := svc.CreateTable(ctx, ref, schema, noAudit); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created table %s\n", ref)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "Dataset or schema (default from profile)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file (YAML or JSON)")
	cmd.Flags().BoolVar(&acceptCapitals, "accept-capitals", false, acceptCapitalsUsage)
	cmd.Flags().BoolVar(&noAudit, "no-audit-column", false, "Do not add the audit column")
	return cmd
}

// readInput reads a CSV file, or stdin for "-", and returns the frame and
// the number of bytes read.
func readInput(cmd *cobra.Command, path string, opts frame.CSVOptions) (*frame.Frame, int64, error) {
	if path == "-" {
		data, err := readAll(cmd.InOrStdin(), "stdin")
		if err != nil {
			return nil, 0, err
		}
		f, err := frame.ReadCSV(strings.NewReader(data), opts)
		return f, int64(len(data)), err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, 0, fmt.Errorf("input: %w", err)
	}
	f, err := frame.ReadCSVFile(path, opts)
	return f, info.Size(), err
}

func schemaKinds(schema warehouse.Schema) map[string]frame.Kind {
	kinds := make(map[string]frame.Kind, len(schema))
	for _, field := range schema {
		kinds[field.Name] = warehouse.KindForFieldType(field.Type)
	}
	return kinds
}
