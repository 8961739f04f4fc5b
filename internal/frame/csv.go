package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// CSVOptions controls CSV decoding.
type CSVOptions struct {
	// Comma is the field delimiter, ',' when zero.
	Comma rune
	// Kinds forces the kind of the named columns instead of inferring it.
	// Names match the header case-insensitively.
	Kinds map[string]Kind
	// NullValues lists cell values read as NULL in addition to "".
	NullValues []string
}

// ReadCSVFile reads a CSV file with a header row.
func ReadCSVFile(path string, opts CSVOptions) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV reads CSV data with a header row. Column kinds are inferred from
// the cells unless overridden in opts.Kinds.
func ReadCSV(r io.Reader, opts CSVOptions) (*Frame, error) {
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Frame{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	raw := make([][]string, len(header))
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		for i := range header {
			raw[i] = append(raw[i], record[i])
		}
	}

	isNull := func(s string) bool {
		if s == "" {
			return true
		}
		for _, n := range opts.NullValues {
			if s == n {
				return true
			}
		}
		return false
	}

	cols := make([]*Column, len(header))
	kinds := make(map[string]Kind, len(opts.Kinds))
	for name, kind := range opts.Kinds {
		kinds[strings.ToLower(name)] = kind
	}
	for i, name := range header {
		name = strings.TrimSpace(name)
		kind, forced := kinds[strings.ToLower(name)]
		if !forced {
			kind = inferKind(raw[i], isNull)
		}
		src := &Column{Name: name, Kind: KindString, Values: make([]any, len(raw[i]))}
		for j, cell := range raw[i] {
			if !isNull(cell) {
				src.Values[j] = cell
			}
		}
		col, err := src.Cast(kind)
		if err != nil {
			return nil, err
		}
		cols[i] = col
	}
	return New(cols...)
}

// inferKind picks the narrowest kind every non-null cell parses as.
func inferKind(cells []string, isNull func(string) bool) Kind {
	candidates := []struct {
		kind  Kind
		parse func(string) bool
	}{
		{KindInt64, func(s string) bool { _, err := strconv.ParseInt(s, 10, 64); return err == nil }},
		{KindFloat64, func(s string) bool {
			v, err := strconv.ParseFloat(s, 64)
			return err == nil && !math.IsNaN(v) && !math.IsInf(v, 0)
		}},
		{KindBool, func(s string) bool {
			l := strings.ToLower(s)
			return l == "true" || l == "false"
		}},
		{KindDate, func(s string) bool { _, err := parseStrictDate(s); return err == nil }},
		{KindTimestamp, func(s string) bool { _, err := ParseTimestamp(s); return err == nil }},
	}

	var values []string
	for _, c := range cells {
		if !isNull(c) {
			values = append(values, strings.TrimSpace(c))
		}
	}
	if len(values) == 0 {
		return KindString
	}

	for _, cand := range candidates {
		ok := true
		for _, v := range values {
			if !cand.parse(v) {
				ok = false
				break
			}
		}
		if ok {
			return cand.kind
		}
	}
	return KindString
}

func parseStrictDate(s string) (time.Time, error) {
	if len(s) != len(dateLayout) {
		return time.Time{}, fmt.Errorf("not a date")
	}
	return ParseDate(s)
}

// WriteCSV writes the frame with a header row. NULL is written as an empty cell.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Names()); err != nil {
		return err
	}
	for _, rec := range f.Records() {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Records returns every row rendered as CSV cells.
func (f *Frame) Records() [][]string {
	out := make([][]string, f.NumRows())
	for i := range out {
		rec := make([]string, len(f.Columns))
		for j, c := range f.Columns {
			if v := c.Values[i]; v != nil {
				rec[j] = formatCell(c.Kind, v)
			}
		}
		out[i] = rec
	}
	return out
}
