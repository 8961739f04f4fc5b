package frame

import (
	"fmt"
	"strings"
)

// Kind is the logical type of a frame column.
type Kind int

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindTimestamp
	KindDate
	KindBytes
)

var kindNames = map[Kind]string{
	KindString:    "string",
	KindInt64:     "int64",
	KindFloat64:   "float64",
	KindBool:      "bool",
	KindTimestamp: "timestamp",
	KindDate:      "date",
	KindBytes:     "bytes",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind parses a kind name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindString, fmt.Errorf("unknown column kind %q", s)
}
