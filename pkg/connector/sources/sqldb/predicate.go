package sqldb

import (
	"strconv"
	"strings"
	"time"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

const (
	predicateJoin = " AND "
	isNull        = " IS NULL"
	sqlTimeFormat = "2006-01-02 15:04:05.9999999"
	// DATETIME and SMALLDATETIME literals accept at most milliseconds
	sqlMillisTimeFormat = "2006-01-02 15:04:05.999"
)

// quotedTypes are the database type names whose values are written as
// quoted literals in an id predicate. Everything else is written raw.
var quotedTypes = map[string]struct{}{
	"CHAR": {}, "VARCHAR": {}, "NCHAR": {}, "NVARCHAR": {}, "TEXT": {}, "NTEXT": {},
	"DATE": {}, "TIME": {}, "DATETIME": {}, "DATETIME2": {}, "TIMESTAMP": {},
	"SMALLDATETIME": {}, "DATETIMEOFFSET": {}, "UNIQUEIDENTIFIER": {}, "CLOB": {},
	// driver specific spellings of the same types
	"BPCHAR": {}, "VARCHAR2": {}, "NVARCHAR2": {}, "NCLOB": {}, "UUID": {},
	"TIMESTAMPTZ": {}, "TIMETZ": {}, "CHARACTER VARYING": {}, "CHARACTER": {},
	"TINYTEXT": {}, "MEDIUMTEXT": {}, "LONGTEXT": {}, "ENUM": {}, "SET": {},
}

// isQuotedType reports whether values of the type are quoted. An unknown
// type (empty name) falls back to the Go value: strings and times are
// quoted.
func isQuotedType(typeName string, value interface{}) bool {
	if typeName != "" {
		_, ok := quotedTypes[strings.ToUpper(typeName)]
		return ok
	}
	switch value.(type) {
	case string, time.Time:
		return true
	}
	return false
}

// literal renders a value for an id predicate. The second result is false
// for NULL.
func literal(typeName string, value interface{}) (string, bool) {
	if value == nil {
		return "", false
	}
	value = columnValue(typeName, value)

	if t, ok := value.(time.Time); ok {
		format := sqlTimeFormat
		switch tz := strings.ToUpper(typeName); {
		case tz == "DATETIME", tz == "SMALLDATETIME":
			format = sqlMillisTimeFormat
		case strings.Contains(tz, "TZ"), strings.Contains(tz, "OFFSET"):
			format += " -07:00"
		}
		return stringpool.QuoteLiteral(t.Format(format)), true
	}

	switch v := value.(type) {
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	}

	text := stringpool.ValueToString(value)
	if isQuotedType(typeName, value) || !isNumeric(text) {
		return stringpool.QuoteLiteral(text), true
	}
	return text, true
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != '.' {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// term is one column condition of an id predicate.
type term struct {
	column string
	// value is the rendered literal; empty with null set for IS NULL
	value string
	null  bool
}

func (t term) String() string {
	if t.null {
		return t.column + isNull
	}
	return t.column + "=" + t.value
}

func joinTerms(terms []term) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, predicateJoin)
}

// parsePredicate splits an id predicate produced by the mapper back into its
// terms. The columns must appear in idColumns order and every value must be a
// quoted literal, a number or IS NULL, so nothing else can reach the WHERE
// clause built from it.
func parsePredicate(id string, idColumns []string) ([]term, error) {
	invalid := func(reason string) error {
		return errors.Newf(errors.ErrorTypeValidation, "invalid record id: %s", reason).
			WithDetail("id", id)
	}

	rest := id
	terms := make([]term, 0, len(idColumns))
	for i, col := range idColumns {
		if i > 0 {
			if !strings.HasPrefix(rest, predicateJoin) {
				return nil, invalid("expected AND before " + col)
			}
			rest = rest[len(predicateJoin):]
		}

		if strings.HasPrefix(rest, col+isNull) {
			terms = append(terms, term{column: col, null: true})
			rest = rest[len(col)+len(isNull):]
			continue
		}
		if !strings.HasPrefix(rest, col+"=") {
			return nil, invalid("expected column " + col)
		}
		rest = rest[len(col)+1:]

		var value string
		if strings.HasPrefix(rest, "'") {
			end := closingQuote(rest)
			if end < 0 {
				return nil, invalid("unterminated literal for " + col)
			}
			value, rest = rest[:end+1], rest[end+1:]
		} else {
			end := strings.Index(rest, predicateJoin)
			if end < 0 {
				end = len(rest)
			}
			value, rest = rest[:end], rest[end:]
			if !isNumeric(value) {
				return nil, invalid("value for " + col + " is not a number")
			}
		}
		terms = append(terms, term{column: col, value: value})
	}

	if rest != "" {
		return nil, invalid("unexpected trailing text")
	}
	return terms, nil
}

// closingQuote returns the index of the quote ending the literal that s
// starts with, skipping doubled quotes, or -1.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		if s[i] != '\'' {
			continue
		}
		if i+1 < len(s) && s[i+1] == '\'' {
			i++
			continue
		}
		return i
	}
	return -1
}

// writeWhere appends the WHERE clause for terms with quoted identifiers.
func writeWhere(sb *stringpool.SQLBuilder, terms []term) {
	sb.WriteQuery(" WHERE ")
	for i, t := range terms {
		if i > 0 {
			sb.WriteQuery(predicateJoin)
		}
		sb.WriteIdentifier(t.column)
		if t.null {
			sb.WriteQuery(isNull)
		} else {
			sb.WriteQuery(" = ").WriteQuery(t.value)
		}
	}
}
