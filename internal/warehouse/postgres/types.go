package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

var ddlTypes = map[warehouse.FieldType]string{
	warehouse.TypeString:    "text",
	warehouse.TypeInteger:   "bigint",
	warehouse.TypeFloat:     "double precision",
	warehouse.TypeNumeric:   "numeric",
	warehouse.TypeBoolean:   "boolean",
	warehouse.TypeTimestamp: "timestamptz",
	warehouse.TypeDatetime:  "timestamp",
	warehouse.TypeDate:      "date",
	warehouse.TypeTime:      "time",
	warehouse.TypeBytes:     "bytea",
	warehouse.TypeJSON:      "jsonb",
}

// fieldType maps an information_schema udt_name to a field type.
func fieldType(udt string) warehouse.FieldType {
	switch udt {
	case "int2", "int4", "int8":
		return warehouse.TypeInteger
	case "float4", "float8":
		return warehouse.TypeFloat
	case "numeric":
		return warehouse.TypeNumeric
	case "bool":
		return warehouse.TypeBoolean
	case "timestamptz":
		return warehouse.TypeTimestamp
	case "timestamp":
		return warehouse.TypeDatetime
	case "date":
		return warehouse.TypeDate
	case "time", "timetz":
		return warehouse.TypeTime
	case "bytea":
		return warehouse.TypeBytes
	case "json", "jsonb":
		return warehouse.TypeJSON
	default:
		return warehouse.TypeString
	}
}

// kindForOID maps a result column type OID to a frame kind.
func kindForOID(oid uint32) frame.Kind {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID:
		return frame.KindInt64
	case pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return frame.KindFloat64
	case pgtype.BoolOID:
		return frame.KindBool
	case pgtype.TimestamptzOID, pgtype.TimestampOID:
		return frame.KindTimestamp
	case pgtype.DateOID:
		return frame.KindDate
	case pgtype.ByteaOID:
		return frame.KindBytes
	default:
		return frame.KindString
	}
}

// frameValue converts a value returned by pgx.Rows.Values.
func frameValue(kind frame.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return nil, err
		}
		if !f.Valid {
			return nil, nil
		}
		return f.Float64, nil
	case time.Time:
		if kind == frame.KindTimestamp {
			return x.UTC(), nil
		}
		return x, nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case pgtype.Time:
		d := time.Duration(x.Microseconds) * time.Microsecond
		return time.Time{}.Add(d).Format("15:04:05.999999"), nil
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	if kind == frame.KindString {
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
	return v, nil
}

func quote(parts ...string) string {
	return warehouse.DoubleQuote.Quote(parts...)
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// createTableStatements returns CREATE TABLE followed by one COMMENT ON
// COLUMN per described field.
func createTableStatements(ref warehouse.TableRef, schema warehouse.Schema) ([]string, error) {
	if len(schema) == 0 {
		return nil, fmt.Errorf("%w: no columns", warehouse.ErrInvalidSchema)
	}
	target := quote(ref.Dataset, ref.Table)

	cols := make([]string, len(schema))
	var comments []string
	for i, f := range schema {
		native, ok := ddlTypes[f.Type]
		if !ok {
			return nil, fmt.Errorf("%w: column %q has unknown type %q", warehouse.ErrInvalidSchema, f.Name, f.Type)
		}
		cols[i] = quote(f.Name) + " " + native
		if f.Required() {
			cols[i] += " NOT NULL"
		}
		if f.Description != "" {
			comments = append(comments, fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s",
				target, quote(f.Name), quoteLiteral(f.Description)))
		}
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE %s (%s)", target, strings.Join(cols, ", "))}
	return append(stmts, comments...), nil
}
