package sqldb

import (
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

func TestVersionDefaultsToOne(t *testing.T) {
	m := &mapping{scheme: Scheme, idColumns: []string{"pk"}, displayColumns: []string{"pk"}}

	for _, values := range [][]interface{}{
		{int64(1), "first"},
		{int64(2), nil},
		{int64(3), "changed content"},
	} {
		rec, err := m.mapRow(row{columns: []string{"pk", "body"}, types: []string{"INT", "TEXT"}, values: values})
		require.NoError(t, err)
		assert.Equal(t, "1", rec.Version)
	}
}

func TestMapRowIsDeterministic(t *testing.T) {
	m := &mapping{
		scheme:         Scheme,
		idColumns:      []string{"pk", "name"},
		displayColumns: []string{"name"},
		versionColumns: []string{"rev"},
		contentColumn:  "body",
	}
	r := row{
		columns: []string{"pk", "name", "rev", "body", "id", "score"},
		types:   []string{"BIGINT", "VARCHAR", "INT", "VARBINARY", "INT", "FLOAT"},
		values:  []interface{}{int64(10), []byte("report"), int64(2), []byte("payload"), int64(99), 0.5},
	}

	a, err := m.mapRow(r)
	require.NoError(t, err)
	b, err := m.mapRow(r)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, "pk=10 AND name='report'", a.ID)
	assert.Equal(t, "report", a.DisplayName)
	assert.Equal(t, "2", a.Version)
	assert.Equal(t, int64(7), a.Size)
	assert.True(t, a.HasContent)
	assert.Equal(t, "report", a.Metadata["name"])
	assert.Equal(t, 0.5, a.Metadata["score"])
	assert.NotContains(t, a.Metadata, "id")
	assert.NotContains(t, a.Metadata, "body")
}

// guidBytes is guidText as SQL Server sends it: the first three groups
// little-endian.
var guidBytes = []byte{
	0xFF, 0x19, 0x96, 0x6F, 0x86, 0x8B, 0x11, 0xD0,
	0xB4, 0x2D, 0x00, 0xC0, 0x4F, 0xC9, 0x64, 0xFF,
}

const guidText = "6F9619FF-8B86-D011-B42D-00C04FC964FF"

func TestLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500000000, time.UTC)
	tests := []struct {
		name     string
		typeName string
		value    interface{}
		want     string
		notNull  bool
	}{
		{"int", "INT", int64(5), "5", true},
		{"decimal bytes", "DECIMAL", []byte("12.50"), "12.50", true},
		{"varchar number stays quoted", "VARCHAR", "007", "'007'", true},
		{"nvarchar quote", "NVARCHAR", "it's", "'it''s'", true},
		{"uniqueidentifier", "UNIQUEIDENTIFIER", "6F9619FF-8B86-D011-B42D-00C04FC964FF", "'6F9619FF-8B86-D011-B42D-00C04FC964FF'", true},
		{"datetime2", "DATETIME2", ts, "'2024-03-01 12:30:00.5'", true},
		{"datetime2 full precision", "DATETIME2", ts.Add(3333300), "'2024-03-01 12:30:00.5033333'", true},
		{"datetime millis", "DATETIME", ts.Add(3333300), "'2024-03-01 12:30:00.503'", true},
		{"smalldatetime", "SMALLDATETIME", ts.Truncate(time.Minute), "'2024-03-01 12:30:00'", true},
		{"uniqueidentifier bytes", "UNIQUEIDENTIFIER", guidBytes, "'" + guidText + "'", true},
		{"datetimeoffset", "DATETIMEOFFSET", ts, "'2024-03-01 12:30:00.5 +00:00'", true},
		{"bit", "BIT", true, "1", true},
		{"unknown type string", "", "abc", "'abc'", true},
		{"unknown type int", "", int64(3), "3", true},
		{"binary text is quoted", "VARBINARY", []byte("xyz"), "'xyz'", true},
		{"null", "INT", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := literal(tt.typeName, tt.value)
			assert.Equal(t, tt.notNull, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredicateRoundTrip(t *testing.T) {
	cols := []string{"pk", "owner", "region"}
	terms := []term{
		{column: "pk", value: "-12.5"},
		{column: "owner", value: "'a AND b=''c'''"},
		{column: "region", null: true},
	}
	id := joinTerms(terms)
	assert.Equal(t, "pk=-12.5 AND owner='a AND b=''c''' AND region IS NULL", id)

	parsed, err := parsePredicate(id, cols)
	require.NoError(t, err)
	assert.Equal(t, terms, parsed)

	sb := stringpool.NewSQLBuilder(stringpool.QuoteBracket)
	writeWhere(sb, parsed)
	assert.Equal(t, " WHERE [pk] = -12.5 AND [owner] = 'a AND b=''c''' AND [region] IS NULL", sb.String())
}

func TestUniqueIdentifierKeyRoundTrip(t *testing.T) {
	m := &mapping{scheme: Scheme, idColumns: []string{"guid"}, displayColumns: []string{"guid"}}
	rec, err := m.mapRow(row{
		columns: []string{"guid", "title"},
		types:   []string{"UNIQUEIDENTIFIER", "NVARCHAR"},
		values:  []interface{}{guidBytes, "q1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "guid='"+guidText+"'", rec.ID)
	assert.True(t, utf8.ValidString(rec.ID))
	assert.Equal(t, guidText, rec.DisplayName)
	assert.Equal(t, guidText, rec.Metadata["guid"])

	id, err := core.DecodeURI(Scheme, rec.URI)
	require.NoError(t, err)
	terms, err := parsePredicate(id, m.idColumns)
	require.NoError(t, err)
	assert.Equal(t, []term{{column: "guid", value: "'" + guidText + "'"}}, terms)
}

func TestParsePredicateRejects(t *testing.T) {
	for _, id := range []string{
		"",
		"pk=1",
		"pk=1 AND owner=2 AND region=3 AND extra=4",
		"pk=1 AND owner=x AND region=3",
		"pk=1 AND region=3 AND owner=2",
		"pk=1 AND owner='x AND region=3",
		"pk=NaN AND owner=1 AND region=1",
	} {
		_, err := parsePredicate(id, []string{"pk", "owner", "region"})
		require.Error(t, err, id)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), id)
	}
}

func TestInferValue(t *testing.T) {
	assert.Equal(t, int64(42), inferValue("DECIMAL", []byte("42")))
	assert.Equal(t, 4.25, inferValue("NUMERIC", "4.25"))
	assert.Equal(t, "0042", inferValue("VARCHAR", []byte("0042")))
	assert.Equal(t, "0042", inferValue("", "0042"))
	assert.Equal(t, int64(42), inferValue("", []byte("42")))
	assert.Equal(t, "hello", inferValue("BLOB", []byte("hello")))
	assert.Equal(t, true, inferValue("BIT", true))
	assert.Nil(t, inferValue("INT", nil))
	assert.Equal(t, guidText, inferValue("UNIQUEIDENTIFIER", guidBytes))
	assert.Equal(t, "short", inferValue("UNIQUEIDENTIFIER", []byte("short")))
}

func TestMSSQLConfigCredentials(t *testing.T) {
	cfg, err := mssqlConfig("sqlserver://db01:1433?database=docs", "sa", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "sa", cfg.User)
	assert.Equal(t, "s3cret", cfg.Password)
	assert.Equal(t, "db01", cfg.Host)

	cfg, err = mssqlConfig("server=db01;database=docs", "sa", "a;b=c")
	require.NoError(t, err)
	assert.Equal(t, "a;b=c", cfg.Password)
	assert.Equal(t, "docs", cfg.Database)

	cfg, err = mssqlConfig("server=db01;user id=app;password=pw", "", "")
	require.NoError(t, err)
	assert.Equal(t, "app", cfg.User)
	assert.Equal(t, "pw", cfg.Password)
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, "sqlserver", dialectFor("").name)
	assert.Equal(t, "sqlserver", dialectFor("MSSQL").name)
	assert.Equal(t, "mysql", dialectFor("mariadb").name)
	assert.Equal(t, "postgres", dialectFor("pgx").name)

	oracle := dialectFor("godror")
	assert.Equal(t, "godror", oracle.name)
	sb := stringpool.NewSQLBuilder(oracle.quote)
	oracle.writePaging(sb, 200, 100)
	assert.Equal(t, " OFFSET 200 ROWS FETCH NEXT 100 ROWS ONLY", sb.String())
}
