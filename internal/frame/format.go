package frame

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// FormatValue renders a value of the given kind for display.
func FormatValue(kind Kind, v any) string {
	if v == nil {
		return "NULL"
	}
	return formatCell(kind, v)
}

// formatCell renders a non-nil value the way it is written to CSV.
func formatCell(kind Kind, v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if kind == KindDate {
			return x.Format(dateLayout)
		}
		return x.Format(time.RFC3339Nano)
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
