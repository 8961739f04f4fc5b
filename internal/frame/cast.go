package frame

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Fractional seconds are accepted by time.Parse even when the layout omits them.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Cast converts the named column to kind in place.
func (f *Frame) Cast(name string, kind Kind) error {
	i := f.Index(name)
	if i < 0 {
		return fmt.Errorf("column %q not found", name)
	}
	col, err := f.Columns[i].Cast(kind)
	if err != nil {
		return err
	}
	f.Columns[i] = col
	return nil
}

// Cast returns a copy of the column converted to kind.
func (c *Column) Cast(kind Kind) (*Column, error) {
	out := &Column{Name: c.Name, Kind: kind, Values: make([]any, len(c.Values))}
	if kind == c.Kind {
		copy(out.Values, c.Values)
		return out, nil
	}
	for i, v := range c.Values {
		nv, err := convert(v, c.Kind, kind)
		if err != nil {
			return nil, fmt.Errorf("cast column %q row %d to %s: %w", c.Name, i, kind, err)
		}
		out.Values[i] = nv
	}
	return out, nil
}

func convert(v any, from, to Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch to {
	case KindString:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
		return FormatValue(from, v), nil
	case KindInt64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
				return nil, fmt.Errorf("%v is not an integer", x)
			}
			return int64(x), nil
		case bool:
			if x {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		}
	case KindFloat64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case bool:
			if x {
				return 1.0, nil
			}
			return 0.0, nil
		case string:
			return strconv.ParseFloat(strings.TrimSpace(x), 64)
		}
	case KindBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(x))
		}
	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			return ParseTimestamp(x)
		}
	case KindDate:
		switch x := v.(type) {
		case time.Time:
			return truncateDate(x), nil
		case string:
			return ParseDate(x)
		}
	case KindBytes:
		switch x := v.(type) {
		case []byte:
			return x, nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %s value %v", from, v)
}

// ParseTimestamp parses the timestamp layouts bqpipe reads and writes.
// Values without a zone are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ParseDate parses a YYYY-MM-DD date, or a timestamp truncated to its date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return truncateDate(t), nil
}
