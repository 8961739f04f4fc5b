package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

var toBigQueryType = map[warehouse.FieldType]bigquery.FieldType{
	warehouse.TypeString:    bigquery.StringFieldType,
	warehouse.TypeInteger:   bigquery.IntegerFieldType,
	warehouse.TypeFloat:     bigquery.FloatFieldType,
	warehouse.TypeNumeric:   bigquery.NumericFieldType,
	warehouse.TypeBoolean:   bigquery.BooleanFieldType,
	warehouse.TypeTimestamp: bigquery.TimestampFieldType,
	warehouse.TypeDatetime:  bigquery.DateTimeFieldType,
	warehouse.TypeDate:      bigquery.DateFieldType,
	warehouse.TypeTime:      bigquery.TimeFieldType,
	warehouse.TypeBytes:     bigquery.BytesFieldType,
	warehouse.TypeJSON:      bigquery.JSONFieldType,
}

func fromBigQueryType(t bigquery.FieldType) warehouse.FieldType {
	switch t {
	case bigquery.IntegerFieldType:
		return warehouse.TypeInteger
	case bigquery.FloatFieldType:
		return warehouse.TypeFloat
	case bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return warehouse.TypeNumeric
	case bigquery.BooleanFieldType:
		return warehouse.TypeBoolean
	case bigquery.TimestampFieldType:
		return warehouse.TypeTimestamp
	case bigquery.DateTimeFieldType:
		return warehouse.TypeDatetime
	case bigquery.DateFieldType:
		return warehouse.TypeDate
	case bigquery.TimeFieldType:
		return warehouse.TypeTime
	case bigquery.BytesFieldType:
		return warehouse.TypeBytes
	case bigquery.JSONFieldType, bigquery.RecordFieldType:
		return warehouse.TypeJSON
	default:
		return warehouse.TypeString
	}
}

func toBigQuerySchema(schema warehouse.Schema) (bigquery.Schema, error) {
	out := make(bigquery.Schema, len(schema))
	for i, f := range schema {
		t, ok := toBigQueryType[f.Type]
		if !ok {
			return nil, fmt.Errorf("%w: column %q has unknown type %q", warehouse.ErrInvalidSchema, f.Name, f.Type)
		}
		out[i] = &bigquery.FieldSchema{
			Name:        f.Name,
			Type:        t,
			Required:    f.Required(),
			Description: f.Description,
		}
	}
	return out, nil
}

func fromBigQuerySchema(schema bigquery.Schema) warehouse.Schema {
	out := make(warehouse.Schema, len(schema))
	for i, f := range schema {
		mode := warehouse.ModeNullable
		if f.Required {
			mode = warehouse.ModeRequired
		}
		t := fromBigQueryType(f.Type)
		if f.Repeated {
			t = warehouse.TypeJSON
		}
		out[i] = warehouse.Field{Name: f.Name, Type: t, Mode: mode, Description: f.Description}
	}
	return out
}

// resultFrame converts query rows into a frame typed by the result schema.
func resultFrame(res *queryResult) (*frame.Frame, error) {
	schema := fromBigQuerySchema(res.Schema)
	cols := make([]*frame.Column, len(schema))
	for i, f := range schema {
		cols[i] = &frame.Column{
			Name:   f.Name,
			Kind:   warehouse.KindForFieldType(f.Type),
			Values: make([]any, 0, len(res.Rows)),
		}
	}

	for r, row := range res.Rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d fields", r, len(row), len(cols))
		}
		for i, v := range row {
			fv, err := frameValue(cols[i].Kind, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, cols[i].Name, err)
			}
			cols[i].Values = append(cols[i].Values, fv)
		}
	}
	return frame.New(cols...)
}

// frameValue maps a bigquery.Value onto the representation of kind. TIME
// values keep their civil string form.
func frameValue(kind frame.Kind, v bigquery.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case frame.KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case *big.Rat:
			f, _ := x.Float64()
			return f, nil
		}
	case frame.KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case civil.DateTime:
			return x.In(time.UTC), nil
		case fmt.Stringer:
			return frame.ParseTimestamp(x.String())
		}
	case frame.KindDate:
		switch x := v.(type) {
		case civil.Date:
			return x.In(time.UTC), nil
		case fmt.Stringer:
			return frame.ParseDate(x.String())
		}
	case frame.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case fmt.Stringer:
			return x.String(), nil
		default:
			data, err := json.Marshal(x)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("unexpected %T for %s", v, kind)
}
