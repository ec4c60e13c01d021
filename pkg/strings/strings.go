// Package strings provides the builders connectors use to assemble SQL
// statements and request URLs, and value-to-text conversion for record
// fields.
package strings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// QuoteStyle selects how SQL identifiers are quoted.
type QuoteStyle int

const (
	// QuoteANSI quotes identifiers with double quotes (PostgreSQL, Oracle)
	QuoteANSI QuoteStyle = iota
	// QuoteBracket quotes identifiers with square brackets (SQL Server)
	QuoteBracket
	// QuoteBacktick quotes identifiers with backticks (MySQL)
	QuoteBacktick
	// QuoteNone writes identifiers as given
	QuoteNone
)

// SQLBuilder provides SQL statement building
type SQLBuilder struct {
	builder strings.Builder
	quote   QuoteStyle
}

// NewSQLBuilder creates a new SQL builder
func NewSQLBuilder(quote QuoteStyle) *SQLBuilder {
	return &SQLBuilder{quote: quote}
}

// WriteQuery writes a SQL query part
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.builder.WriteString(query)
	return sb
}

// WriteSpace adds a space
func (sb *SQLBuilder) WriteSpace() *SQLBuilder {
	sb.builder.WriteByte(' ')
	return sb
}

// WriteStringLiteral writes a quoted string literal, doubling single quotes
func (sb *SQLBuilder) WriteStringLiteral(value string) *SQLBuilder {
	sb.builder.WriteString(QuoteLiteral(value))
	return sb
}

// WriteIdentifier writes a quoted identifier. Dotted names are quoted per
// part, so dbo.docs becomes [dbo].[docs] with QuoteBracket.
func (sb *SQLBuilder) WriteIdentifier(name string) *SQLBuilder {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if i > 0 {
			sb.builder.WriteByte('.')
		}
		sb.writeIdentPart(p)
	}
	return sb
}

func (sb *SQLBuilder) writeIdentPart(name string) {
	var open, closing string
	switch sb.quote {
	case QuoteBracket:
		open, closing = "[", "]"
	case QuoteBacktick:
		open, closing = "`", "`"
	case QuoteNone:
		sb.builder.WriteString(name)
		return
	default:
		open, closing = `"`, `"`
	}
	sb.builder.WriteString(open)
	sb.builder.WriteString(strings.ReplaceAll(name, closing, closing+closing))
	sb.builder.WriteString(closing)
}

// WriteIdentifiers writes a comma separated identifier list
func (sb *SQLBuilder) WriteIdentifiers(names []string, suffix string) *SQLBuilder {
	for i, n := range names {
		if i > 0 {
			sb.builder.WriteString(", ")
		}
		sb.WriteIdentifier(n)
		sb.builder.WriteString(suffix)
	}
	return sb
}

// WriteInt writes an integer value
func (sb *SQLBuilder) WriteInt(value int64) *SQLBuilder {
	sb.builder.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// String returns the built SQL query
func (sb *SQLBuilder) String() string {
	return sb.builder.String()
}

// QuoteLiteral returns value as a single-quoted SQL literal.
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// URLBuilder provides URL building
type URLBuilder struct {
	base   string
	path   []string
	params url.Values
	keys   []string
}

// NewURLBuilder creates a new URL builder
func NewURLBuilder(baseURL string) *URLBuilder {
	return &URLBuilder{
		base:   strings.TrimRight(baseURL, "/"),
		params: url.Values{},
	}
}

// AddPath adds path segments to the URL
func (ub *URLBuilder) AddPath(segments ...string) *URLBuilder {
	for _, s := range segments {
		if s = strings.Trim(s, "/"); s != "" {
			ub.path = append(ub.path, url.PathEscape(s))
		}
	}
	return ub
}

// AddParam adds a URL parameter. Parameters keep insertion order.
func (ub *URLBuilder) AddParam(key, value string) *URLBuilder {
	if _, ok := ub.params[key]; !ok {
		ub.keys = append(ub.keys, key)
	}
	ub.params.Add(key, value)
	return ub
}

// AddParamInt adds an integer parameter
func (ub *URLBuilder) AddParamInt(key string, value int) *URLBuilder {
	return ub.AddParam(key, strconv.Itoa(value))
}

// Query returns just the encoded query string
func (ub *URLBuilder) Query() string {
	var sb strings.Builder
	for _, k := range ub.keys {
		for _, v := range ub.params[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// String returns the built URL
func (ub *URLBuilder) String() string {
	var sb strings.Builder
	sb.WriteString(ub.base)
	for _, p := range ub.path {
		sb.WriteByte('/')
		sb.WriteString(p)
	}
	if q := ub.Query(); q != "" {
		sb.WriteByte('?')
		sb.WriteString(q)
	}
	return sb.String()
}

// ValueToString converts a field value to its text form. Times use RFC3339
// with nanoseconds, byte slices are treated as text and nil is empty.
func ValueToString(value interface{}) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case interface{ String() string }:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
