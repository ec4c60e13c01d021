package strings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSQLBuilderIdentifiers(t *testing.T) {
	tests := []struct {
		name  string
		quote QuoteStyle
		ident string
		want  string
	}{
		{"ansi", QuoteANSI, "documents", `"documents"`},
		{"ansi embedded quote", QuoteANSI, `we"ird`, `"we""ird"`},
		{"bracket schema", QuoteBracket, "dbo.docs", "[dbo].[docs]"},
		{"bracket escape", QuoteBracket, "a]b", "[a]]b]"},
		{"backtick", QuoteBacktick, "docs", "`docs`"},
		{"none", QuoteNone, "docs", "docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewSQLBuilder(tt.quote).WriteIdentifier(tt.ident).String())
		})
	}
}

func TestSQLBuilderStatement(t *testing.T) {
	sql := NewSQLBuilder(QuoteBracket).
		WriteQuery("SELECT * FROM ").
		WriteIdentifier("docs").
		WriteQuery(" ORDER BY ").
		WriteIdentifiers([]string{"id", "rev"}, " ASC").
		WriteQuery(" OFFSET ").
		WriteInt(200).
		WriteQuery(" ROWS WHERE name = ").
		WriteStringLiteral("O'Brien").
		String()

	assert.Equal(t, "SELECT * FROM [docs] ORDER BY [id] ASC, [rev] ASC OFFSET 200 ROWS WHERE name = 'O''Brien'", sql)
}

func TestURLBuilder(t *testing.T) {
	u := NewURLBuilder("http://solr:8983/solr/").
		AddPath("my core", "select").
		AddParam("q", "title:\"a b\"").
		AddParamInt("start", 100).
		AddParam("fl", "id").
		AddParam("fl", "title")

	assert.Equal(t, "http://solr:8983/solr/my%20core/select?q=title%3A%22a+b%22&start=100&fl=id&fl=title", u.String())
	assert.Equal(t, "", NewURLBuilder("http://x").Query())
}

func TestValueToString(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"abc", "abc"},
		{[]byte("raw"), "raw"},
		{int64(-42), "-42"},
		{uint16(7), "7"},
		{3.5, "3.5"},
		{float32(0.25), "0.25"},
		{true, "true"},
		{ts, "2024-01-02T03:04:05Z"},
		{[]int{1, 2}, "[1 2]"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ValueToString(tt.in))
	}
}
