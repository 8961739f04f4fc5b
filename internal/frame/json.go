package frame

import (
	"bytes"
	"encoding/json"
	"io"
	"time"
)

// MarshalJSON encodes the frame as an array of row objects. Keys keep the
// column order, which map marshaling would not.
func (f *Frame) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('[')
	for i := 0; i < f.NumRows(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := f.writeRowJSON(&b, i); err != nil {
			return nil, err
		}
	}
	b.WriteByte(']')
	return b.Bytes(), nil
}

// WriteJSON writes the frame as a JSON array.
func (f *Frame) WriteJSON(w io.Writer) error {
	data, err := f.MarshalJSON()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteNDJSON writes one JSON object per row, each followed by a newline.
func (f *Frame) WriteNDJSON(w io.Writer) error {
	var b bytes.Buffer
	for i := 0; i < f.NumRows(); i++ {
		b.Reset()
		if err := f.writeRowJSON(&b, i); err != nil {
			return err
		}
		b.WriteByte('\n')
		if _, err := w.Write(b.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (f *Frame) writeRowJSON(b *bytes.Buffer, row int) error {
	b.WriteByte('{')
	for j, c := range f.Columns {
		if j > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return err
		}
		b.Write(key)
		b.WriteByte(':')

		val, err := json.Marshal(jsonValue(c.Kind, c.Values[row]))
		if err != nil {
			return err
		}
		b.Write(val)
	}
	b.WriteByte('}')
	return nil
}

func jsonValue(kind Kind, v any) any {
	t, ok := v.(time.Time)
	if !ok {
		return v
	}
	if kind == KindDate {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339Nano)
}
