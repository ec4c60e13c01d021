package solr

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

type mapping struct {
	idField      string
	displayField string
	versionField string
	contentField string
}

func (m *mapping) mapDoc(doc map[string]interface{}) (*core.Record, error) {
	id := fieldText(doc[m.idField])
	if id == "" {
		return nil, errors.Newf(errors.ErrorTypeData, "document has no %s value", m.idField).
			WithDetail("field", m.idField)
	}

	display := id
	if m.displayField != "" {
		if v := fieldText(doc[m.displayField]); v != "" {
			display = v
		}
	}

	rec := core.NewRecord(id, core.EncodeURI(Scheme, id), display)
	rec.Version = "1"
	if v := fieldText(doc[m.versionField]); v != "" {
		rec.Version = v
	}
	rec.HasContent = true

	for k, v := range doc {
		if k == m.contentField || core.IsReserved(k) {
			continue
		}
		rec.Metadata[k] = typedValue(v)
	}
	if m.contentField != "" {
		rec.Size = int64(len(fieldText(doc[m.contentField])))
	}
	return rec, nil
}

// fieldText renders a stored field. Multi-valued fields are joined with
// newlines.
func fieldText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = fieldText(e)
		}
		return strings.Join(parts, "\n")
	default:
		return stringpool.ValueToString(t)
	}
}

// typedValue turns decoder numbers into int64 or float64.
func typedValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = typedValue(e)
		}
		return out
	default:
		return v
	}
}
