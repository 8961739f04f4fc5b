package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

const maxIdentifierLen = 255

// Dialect quotes identifiers for one warehouse.
type Dialect interface {
	Quote(parts ...string) string
}

type quoteDialect struct {
	open, close string
	upper       bool
}

func (d quoteDialect) Quote(parts ...string) string {
	quoted := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if d.upper {
			p = strings.ToUpper(p)
		}
		quoted = append(quoted, d.open+strings.ReplaceAll(p, d.close, d.close+d.close)+d.close)
	}
	return strings.Join(quoted, ".")
}

var (
	// Backtick quotes each part as `part` (BigQuery).
	Backtick Dialect = quoteDialect{open: "`", close: "`"}
	// DoubleQuote quotes each part as "part" (Postgres).
	DoubleQuote Dialect = quoteDialect{open: `"`, close: `"`}
	// UpperDoubleQuote upper-cases and quotes each part (Snowflake unquoted identifier semantics).
	UpperDoubleQuote Dialect = quoteDialect{open: `"`, close: `"`, upper: true}
)

// ValidateIdentifier accepts letters, digits, underscores and a non-leading $.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidIdentifier, name, maxIdentifierLen)
	}
	for i, r := range name {
		switch {
		case r == '_', unicode.IsLetter(r):
		case unicode.IsDigit(r) || r == '$':
			if i == 0 {
				return fmt.Errorf("%w: %q must start with a letter or underscore", ErrInvalidIdentifier, name)
			}
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidIdentifier, name, r)
		}
	}
	return nil
}

// ValidateTableRef validates both parts of ref.
func ValidateTableRef(ref TableRef) error {
	if ref.Dataset != "" {
		if err := ValidateIdentifier(ref.Dataset); err != nil {
			return fmt.Errorf("dataset: %w", err)
		}
	}
	if err := ValidateIdentifier(ref.Table); err != nil {
		return fmt.Errorf("table: %w", err)
	}
	return nil
}

// BuildSelect renders a SELECT over ref. Field names are validated and quoted;
// Select and Where are passed through as written.
func BuildSelect(d Dialect, ref TableRef, opts FetchOptions) (string, error) {
	if err := ValidateTableRef(ref); err != nil {
		return "", err
	}

	selectList := "*"
	switch {
	case strings.TrimSpace(opts.Select) != "":
		selectList = strings.TrimSpace(opts.Select)
	case len(opts.Fields) > 0:
		cols := make([]string, 0, len(opts.Fields))
		for _, f := range opts.Fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if err := ValidateIdentifier(f); err != nil {
				return "", fmt.Errorf("field: %w", err)
			}
			cols = append(cols, d.Quote(f))
		}
		if len(cols) > 0 {
			selectList = strings.Join(cols, ", ")
		}
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList)
	b.WriteString(" FROM ")
	b.WriteString(d.Quote(ref.Dataset, ref.Table))

	if where := strings.TrimSpace(opts.Where); where != "" {
		if !hasKeywordPrefix(where, "WHERE") {
			where = "WHERE " + where
		}
		b.WriteString(" ")
		b.WriteString(where)
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(opts.Limit))
	}
	return b.String(), nil
}

func hasKeywordPrefix(s, kw string) bool {
	if len(s) < len(kw) || !strings.EqualFold(s[:len(kw)], kw) {
		return false
	}
	return len(s) == len(kw) || unicode.IsSpace(rune(s[len(kw)]))
}
