package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

const (
	formatTable  = "table"
	formatCSV    = "csv"
	formatJSON   = "json"
	formatNDJSON = "ndjson"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// printFrame writes f in the given format.
func printFrame(w io.Writer, f *frame.Frame, format string) error {
	switch format {
	case formatCSV:
		return f.WriteCSV(w)
	case formatJSON:
		if err := f.WriteJSON(w); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	case formatNDJSON:
		return f.WriteNDJSON(w)
	default:
		rows := make([][]string, f.NumRows())
		for i := range rows {
			row := make([]string, f.NumCols())
			for j, c := range f.Columns {
				row[j] = c.Format(i)
			}
			rows[i] = row
		}
		_, err := fmt.Fprintf(w, "%s\n(%s rows)\n", renderTable(f.Names(), rows), humanize.Comma(int64(f.NumRows())))
		return err
	}
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// formatForPath picks the output format from a file extension, falling back
// to def.
func formatForPath(path, def string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return formatCSV
	case ".json":
		return formatJSON
	case ".ndjson", ".jsonl":
		return formatNDJSON
	}
	if def == formatTable {
		return formatCSV
	}
	return def
}

// writeFrameFile writes f to path and returns the written size.
func writeFrameFile(path string, f *frame.Frame, format string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	if err := printFrame(file, f, formatForPath(path, format)); err != nil {
		file.Close()
		return 0, fmt.Errorf("write output: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return 0, err
	}
	return info.Size(), file.Close()
}

// stringsFrame builds a one-column frame, used to print name listings.
func stringsFrame(column string, values []string) *frame.Frame {
	col := &frame.Column{Name: column, Kind: frame.KindString, Values: make([]any, len(values))}
	for i, v := range values {
		col.Values[i] = v
	}
	return &frame.Frame{Columns: []*frame.Column{col}}
}

// schemaFrame lists the fields of a schema.
func schemaFrame(schema warehouse.Schema) *frame.Frame {
	f := &frame.Frame{Columns: []*frame.Column{
		{Name: "name", Kind: frame.KindString},
		{Name: "type", Kind: frame.KindString},
		{Name: "mode", Kind: frame.KindString},
		{Name: "description", Kind: frame.KindString},
	}}
	for _, field := range schema {
		_ = f.AppendRow(field.Name, string(field.Type), string(field.Mode), field.Description)
	}
	return f
}

// printSchema prints a schema. JSON output is a schema file that
// `write --schema` and `create --schema` accept.
func printSchema(w io.Writer, schema warehouse.Schema, format string) error {
	if format != formatJSON {
		return printFrame(w, schemaFrame(schema), format)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(warehouse.SchemaSpecs(schema))
}
