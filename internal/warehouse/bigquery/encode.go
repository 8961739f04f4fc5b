package bigquery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/joacominatel/bqpipe/internal/frame"
	"github.com/joacominatel/bqpipe/internal/warehouse"
)

const (
	timestampLayout = "2006-01-02T15:04:05.999999Z07:00"
	datetimeLayout  = "2006-01-02T15:04:05.999999"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999"
)

// encodeNDJSON writes the frame as newline-delimited JSON, formatting each
// value the way a load job expects for its target column type. Columns
// without a matching field are written as-is.
func encodeNDJSON(w io.Writer, f *frame.Frame, schema warehouse.Schema) error {
	types := make([]warehouse.FieldType, len(f.Columns))
	keys := make([][]byte, len(f.Columns))
	for i, c := range f.Columns {
		types[i] = warehouse.FieldTypeForKind(c.Kind)
		if field, ok := schema.Field(c.Name); ok {
			types[i] = field.Type
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		keys[i] = key
	}

	var b bytes.Buffer
	for r := 0; r < f.NumRows(); r++ {
		b.Reset()
		b.WriteByte('{')
		for i, c := range f.Columns {
			if i > 0 {
				b.WriteByte(',')
			}
			b.Write(keys[i])
			b.WriteByte(':')
			val, err := json.Marshal(loadValue(types[i], c.Values[r]))
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", r, c.Name, err)
			}
			b.Write(val)
		}
		b.WriteString("}\n")
		if _, err := w.Write(b.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func loadValue(t warehouse.FieldType, v any) any {
	if fv, ok := v.(float64); ok {
		// JSON has no literal for these; load jobs accept them as strings.
		switch {
		case math.IsNaN(fv):
			return "NaN"
		case math.IsInf(fv, 1):
			return "Infinity"
		case math.IsInf(fv, -1):
			return "-Infinity"
		}
		return fv
	}
	tv, ok := v.(time.Time)
	if !ok {
		return v
	}
	switch t {
	case warehouse.TypeDatetime:
		return tv.UTC().Format(datetimeLayout)
	case warehouse.TypeDate:
		return tv.Format(dateLayout)
	case warehouse.TypeTime:
		return tv.UTC().Format(timeLayout)
	default:
		return tv.UTC().Format(timestampLayout)
	}
}
