package snowflake

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

var ddlTypes = map[warehouse.FieldType]string{
	warehouse.TypeString:    "VARCHAR",
	warehouse.TypeInteger:   "NUMBER(38,0)",
	warehouse.TypeFloat:     "FLOAT",
	warehouse.TypeNumeric:   "NUMBER(38,9)",
	warehouse.TypeBoolean:   "BOOLEAN",
	warehouse.TypeTimestamp: "TIMESTAMP_TZ",
	warehouse.TypeDatetime:  "TIMESTAMP_NTZ",
	warehouse.TypeDate:      "DATE",
	warehouse.TypeTime:      "TIME",
	warehouse.TypeBytes:     "BINARY",
	warehouse.TypeJSON:      "VARIANT",
}

// fieldType maps an INFORMATION_SCHEMA data type or a driver column type
// name to a field type. scale is -1 when unknown.
func fieldType(name string, scale int64) warehouse.FieldType {
	switch strings.ToUpper(name) {
	case "NUMBER", "FIXED", "DECIMAL", "NUMERIC":
		if scale == 0 {
			return warehouse.TypeInteger
		}
		return warehouse.TypeNumeric
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return warehouse.TypeInteger
	case "FLOAT", "REAL", "DOUBLE":
		return warehouse.TypeFloat
	case "BOOLEAN":
		return warehouse.TypeBoolean
	case "TIMESTAMP_TZ", "TIMESTAMP_LTZ":
		return warehouse.TypeTimestamp
	case "TIMESTAMP_NTZ", "TIMESTAMP", "DATETIME":
		return warehouse.TypeDatetime
	case "DATE":
		return warehouse.TypeDate
	case "TIME":
		return warehouse.TypeTime
	case "BINARY", "VARBINARY":
		return warehouse.TypeBytes
	case "VARIANT", "OBJECT", "ARRAY":
		return warehouse.TypeJSON
	default:
		return warehouse.TypeString
	}
}

func columnDDL(f warehouse.Field) (string, error) {
	native, ok := ddlTypes[f.Type]
	if !ok {
		return "", fmt.Errorf("%w: column %q has unknown type %q", warehouse.ErrInvalidSchema, f.Name, f.Type)
	}
	var b strings.Builder
	b.WriteString(warehouse.UpperDoubleQuote.Quote(f.Name))
	b.WriteString(" ")
	b.WriteString(native)
	if f.Required() {
		b.WriteString(" NOT NULL")
	}
	if f.Description != "" {
		b.WriteString(" COMMENT '")
		b.WriteString(strings.ReplaceAll(f.Description, "'", "''"))
		b.WriteString("'")
	}
	return b.String(), nil
}

func createTableDDL(ref warehouse.TableRef, schema warehouse.Schema) (string, error) {
	if len(schema) == 0 {
		return "", fmt.Errorf("%w: no columns", warehouse.ErrInvalidSchema)
	}
	cols := make([]string, len(schema))
	for i, f := range schema {
		ddl, err := columnDDL(f)
		if err != nil {
			return "", err
		}
		cols[i] = ddl
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)",
		warehouse.UpperDoubleQuote.Quote(ref.Dataset, ref.Table), strings.Join(cols, ", ")), nil
}

// scanFrame reads all rows into a frame typed by the driver's column types.
func scanFrame(rows *sql.Rows) (*frame.Frame, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	cols := make([]*frame.Column, len(types))
	for i, ct := range types {
		scale := int64(-1)
		if _, s, ok := ct.DecimalSize(); ok {
			scale = s
		}
		cols[i] = &frame.Column{
			Name: ct.Name(),
			Kind: warehouse.KindForFieldType(fieldType(ct.DatabaseTypeName(), scale)),
		}
	}

	dest := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for r := 0; rows.Next(); r++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", r, err)
		}
		for i, raw := range dest {
			v, err := frameValue(cols[i].Kind, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, cols[i].Name, err)
			}
			cols[i].Values = append(cols[i].Values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return frame.New(cols...)
}

// frameValue converts a scanned driver value. The driver reports FIXED
// columns as strings.
func frameValue(kind frame.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok && kind != frame.KindBytes {
		v = string(b)
	}

	switch kind {
	case frame.KindInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case string:
			return strconv.ParseInt(x, 10, 64)
		}
	case frame.KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			return strconv.ParseFloat(x, 64)
		}
	case frame.KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			return strconv.ParseBool(x)
		}
	case frame.KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			return frame.ParseTimestamp(x)
		}
	case frame.KindDate:
		switch x := v.(type) {
		case time.Time:
			return time.Date(x.Year(), x.Month(), x.Day(), 0, 0, 0, 0, time.UTC), nil
		case string:
			return frame.ParseDate(x)
		}
	case frame.KindBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return hex.DecodeString(x)
		}
	case frame.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case time.Time:
			return x.Format("15:04:05.999999999"), nil
		default:
			return fmt.Sprint(x), nil
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s", v, kind)
}
