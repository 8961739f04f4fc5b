package warehouse

import (
	"fmt"
	"strings"

	"github.com/joacominatel/bqpipe/internal/frame"
)

// FieldType is a warehouse-neutral column type. Drivers translate it to and
// from their native type names.
type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeNumeric   FieldType = "NUMERIC"
	TypeBoolean   FieldType = "BOOLEAN"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeDatetime  FieldType = "DATETIME"
	TypeDate      FieldType = "DATE"
	TypeTime      FieldType = "TIME"
	TypeBytes     FieldType = "BYTES"
	TypeJSON      FieldType = "JSON"
)

var fieldTypeAliases = map[string]FieldType{
	"string":        TypeString,
	"text":          TypeString,
	"varchar":       TypeString,
	"char":          TypeString,
	"integer":       TypeInteger,
	"int":           TypeInteger,
	"int64":         TypeInteger,
	"bigint":        TypeInteger,
	"smallint":      TypeInteger,
	"float":         TypeFloat,
	"float64":       TypeFloat,
	"double":        TypeFloat,
	"real":          TypeFloat,
	"numeric":       TypeNumeric,
	"number":        TypeNumeric,
	"decimal":       TypeNumeric,
	"bignumeric":    TypeNumeric,
	"boolean":       TypeBoolean,
	"bool":          TypeBoolean,
	"timestamp":     TypeTimestamp,
	"timestamp_tz":  TypeTimestamp,
	"timestamp_ltz": TypeTimestamp,
	"timestamptz":   TypeTimestamp,
	"datetime":      TypeDatetime,
	"timestamp_ntz": TypeDatetime,
	"date":          TypeDate,
	"time":          TypeTime,
	"bytes":         TypeBytes,
	"binary":        TypeBytes,
	"bytea":         TypeBytes,
	"json":          TypeJSON,
	"jsonb":         TypeJSON,
	"variant":       TypeJSON,
}

// ParseFieldType parses a type name or one of its aliases, ignoring case.
func ParseFieldType(s string) (FieldType, error) {
	if t, ok := fieldTypeAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown field type %q", ErrInvalidSchema, s)
}

// FieldTypeForKind maps a frame kind to the field type it is stored as.
func FieldTypeForKind(k frame.Kind) FieldType {
	switch k {
	case frame.KindInt64:
		return TypeInteger
	case frame.KindFloat64:
		return TypeFloat
	case frame.KindBool:
		return TypeBoolean
	case frame.KindTimestamp:
		return TypeTimestamp
	case frame.KindDate:
		return TypeDate
	case frame.KindBytes:
		return TypeBytes
	default:
		return TypeString
	}
}

// KindForFieldType maps a field type to the frame kind it is read as.
func KindForFieldType(t FieldType) frame.Kind {
	switch t {
	case TypeInteger:
		return frame.KindInt64
	case TypeFloat, TypeNumeric:
		return frame.KindFloat64
	case TypeBoolean:
		return frame.KindBool
	case TypeTimestamp, TypeDatetime:
		return frame.KindTimestamp
	case TypeDate:
		return frame.KindDate
	case TypeBytes:
		return frame.KindBytes
	default:
		return frame.KindString
	}
}

// InferSchema derives a NULLABLE schema from the frame's column kinds.
func InferSchema(f *frame.Frame) Schema {
	schema := make(Schema, len(f.Columns))
	for i, c := range f.Columns {
		schema[i] = Field{Name: c.Name, Type: FieldTypeForKind(c.Kind), Mode: ModeNullable}
	}
	return schema
}
