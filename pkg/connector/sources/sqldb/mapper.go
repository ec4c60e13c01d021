package sqldb

import (
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

// defaultVersion is the version of every row when no version columns are configured.
const defaultVersion = "1"

// row is one fetched result row. columns and types are shared by every row
// of a page.
type row struct {
	columns []string
	types   []string
	values  []interface{}
}

func (r row) index(column string) int {
	for i, c := range r.columns {
		if strings.EqualFold(c, column) {
			return i
		}
	}
	return -1
}

// mapping holds the column roles. It is built once per session.
type mapping struct {
	scheme         string
	idColumns      []string
	displayColumns []string
	versionColumns []string
	contentColumn  string
}

// mapRow converts a row into a record. It performs no I/O and returns the
// same record for the same row.
func (m *mapping) mapRow(r row) (*core.Record, error) {
	id, err := m.predicate(r)
	if err != nil {
		return nil, err
	}

	display, err := m.joined(r, m.displayColumns)
	if err != nil {
		return nil, err
	}

	version := defaultVersion
	if len(m.versionColumns) > 0 {
		if version, err = m.joined(r, m.versionColumns); err != nil {
			return nil, err
		}
	}

	rec := core.NewRecord(id, core.EncodeURI(m.scheme, id), display)
	rec.Version = version
	rec.HasContent = true

	for i, col := range r.columns {
		if core.IsReserved(col) || strings.EqualFold(col, m.contentColumn) {
			continue
		}
		rec.Metadata[col] = inferValue(r.types[i], r.values[i])
	}

	if m.contentColumn != "" {
		if i := r.index(m.contentColumn); i >= 0 {
			rec.Size = int64(len(contentBytes(r.values[i])))
		}
	}

	return rec, nil
}

// predicate builds the id: col=value for each id column joined with AND.
func (m *mapping) predicate(r row) (string, error) {
	terms := make([]term, 0, len(m.idColumns))
	for _, col := range m.idColumns {
		i := r.index(col)
		if i < 0 {
			return "", errors.Newf(errors.ErrorTypeData, "id column %s not present in result", col).
				WithDetail("column", col)
		}
		value, ok := literal(r.types[i], r.values[i])
		terms = append(terms, term{column: col, value: value, null: !ok})
	}
	return joinTerms(terms), nil
}

func (m *mapping) joined(r row, columns []string) (string, error) {
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		i := r.index(col)
		if i < 0 {
			return "", errors.Newf(errors.ErrorTypeData, "column %s not present in result", col).
				WithDetail("column", col)
		}
		parts = append(parts, stringpool.ValueToString(columnValue(r.types[i], r.values[i])))
	}
	return strings.Join(parts, " "), nil
}

// inferValue turns a scanned value into the best-guess typed metadata value.
// Times become RFC3339 strings. Byte slices from non-character columns, such
// as DECIMAL under the MySQL driver, become numbers when they parse cleanly.
func inferValue(typeName string, value interface{}) interface{} {
	switch v := columnValue(typeName, value).(type) {
	case nil:
		return nil
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case []byte:
		s := string(v)
		if isQuotedType(typeName, s) && typeName != "" {
			return s
		}
		return inferString(s)
	case string:
		if typeName == "" || isQuotedType(typeName, v) {
			return v
		}
		return inferString(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return v
	default:
		return stringpool.ValueToString(v)
	}
}

// columnValue decodes driver representations that are not text. SQL Server
// returns UNIQUEIDENTIFIER as 16 bytes in mixed byte order; it becomes the
// canonical GUID string the server accepts back in a literal.
func columnValue(typeName string, value interface{}) interface{} {
	b, ok := value.([]byte)
	if !ok || len(b) != 16 || !strings.EqualFold(typeName, "UNIQUEIDENTIFIER") {
		return value
	}
	var u mssql.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return value
	}
	return u.String()
}

func inferString(s string) interface{} {
	if !isNumeric(s) {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func contentBytes(value interface{}) []byte {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return []byte(stringpool.ValueToString(v))
	}
}
