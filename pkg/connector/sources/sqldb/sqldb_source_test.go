package sqldb

import (
	"context"
	stderrors "errors"
	"io"
	"regexp"
	"strconv"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/batch"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
)

func newTestSource(t *testing.T, props map[string]string) (*SQLSource, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := config.NewBaseConfig("docs", Scheme)
	for k, v := range props {
		cfg.Properties[k] = v
	}

	src := NewSQLSourceWithDB(sqlx.NewDb(db, "sqlmock"))
	require.NoError(t, src.Initialize(context.Background(), cfg))
	return src, mock
}

func docColumns(mock sqlmock.Sqlmock) []*sqlmock.Column {
	return []*sqlmock.Column{
		mock.NewColumn("pk").OfType("INT", int64(0)),
		mock.NewColumn("title").OfType("NVARCHAR", ""),
		mock.NewColumn("price").OfType("DECIMAL", []byte{}),
	}
}

func TestListPagesUntilShortPage(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"table":      "documents",
		"id_columns": "pk",
		"batch_size": "2",
	})

	page := func(offset int) string {
		return regexp.QuoteMeta("SELECT * FROM [documents] ORDER BY [pk] OFFSET " +
			strconv.Itoa(offset) + " ROWS FETCH NEXT 2 ROWS ONLY")
	}
	mock.ExpectQuery(page(0)).WillReturnRows(mock.NewRowsWithColumnDefinition(docColumns(mock)...).
		AddRow(int64(1), "alpha", []byte("9.50")).
		AddRow(int64(2), "beta", []byte("10")))
	mock.ExpectQuery(page(2)).WillReturnRows(mock.NewRowsWithColumnDefinition(docColumns(mock)...).
		AddRow(int64(3), "gamma", []byte("1")).
		AddRow(int64(4), "delta", []byte("2")))
	mock.ExpectQuery(page(4)).WillReturnRows(mock.NewRowsWithColumnDefinition(docColumns(mock)...).
		AddRow(int64(5), "epsilon", []byte("3")))
	mock.ExpectClose()

	ctx := context.Background()
	root, err := src.Root(ctx)
	require.NoError(t, err)
	assert.True(t, root.IsContainer)
	assert.Equal(t, "documents", root.DisplayName)

	it, err := src.List(ctx, root)
	require.NoError(t, err)
	recs, err := batch.Drain(ctx, it)
	require.NoError(t, err)
	require.Len(t, recs, 5)

	first := recs[0]
	assert.Equal(t, "pk=1", first.ID)
	assert.Equal(t, "sqldb://pk=1", first.URI)
	assert.Equal(t, "1", first.DisplayName)
	assert.Equal(t, "1", first.Version)
	assert.False(t, first.IsContainer)
	assert.Equal(t, int64(1), first.Metadata["pk"])
	assert.Equal(t, "alpha", first.Metadata["title"])
	assert.Equal(t, 9.5, first.Metadata["price"])
	assert.Equal(t, int64(10), recs[1].Metadata["price"])
	assert.Equal(t, "pk=5", recs[4].ID)

	require.NoError(t, src.Close(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListWithoutPaging(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"driver":     "postgres",
		"query":      "SELECT * FROM docs WHERE archived = false",
		"id_columns": "pk",
		"batch_size": "0",
	})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM (SELECT * FROM docs WHERE archived = false) q ORDER BY "pk"`) + "$").
		WillReturnRows(sqlmock.NewRows([]string{"pk"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))

	ctx := context.Background()
	root, err := src.Root(ctx)
	require.NoError(t, err)
	it, err := src.List(ctx, root)
	require.NoError(t, err)
	recs, err := batch.Drain(ctx, it)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLPagingClause(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"driver":     "mysql",
		"table":      "docs",
		"id_columns": "pk",
		"order_by":   "created desc, pk",
		"batch_size": "10",
	})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `docs` ORDER BY `created` DESC, `pk` LIMIT 10 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"pk"}))

	ctx := context.Background()
	root, _ := src.Root(ctx)
	it, err := src.List(ctx, root)
	require.NoError(t, err)
	assert.False(t, it.Next(ctx))
	assert.NoError(t, it.Err())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompositeIdQuotingAndRoundTrip(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"table":           "documents",
		"id_columns":      "pk,owner,region",
		"display_columns": "owner,pk",
		"version_columns": "rev,updated_at",
		"batch_size":      "5",
	})

	updated := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	columns := func() *sqlmock.Rows {
		return mock.NewRowsWithColumnDefinition(
			mock.NewColumn("pk").OfType("INT", int64(0)),
			mock.NewColumn("owner").OfType("NVARCHAR", ""),
			mock.NewColumn("region").OfType("VARCHAR", ""),
			mock.NewColumn("rev").OfType("INT", int64(0)),
			mock.NewColumn("updated_at").OfType("DATETIME2", time.Time{}),
		)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] ORDER BY [pk], [owner], [region] OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY")).
		WillReturnRows(columns().AddRow(int64(7), "O'Brien", nil, int64(3), updated))

	ctx := context.Background()
	root, _ := src.Root(ctx)
	it, err := src.List(ctx, root)
	require.NoError(t, err)
	recs, err := batch.Drain(ctx, it)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, "pk=7 AND owner='O''Brien' AND region IS NULL", rec.ID)
	assert.Equal(t, "O'Brien 7", rec.DisplayName)
	assert.Equal(t, "3 2024-01-02T03:04:05Z", rec.Version)
	assert.Equal(t, "2024-01-02T03:04:05Z", rec.Metadata["updated_at"])

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] WHERE [pk] = 7 AND [owner] = 'O''Brien' AND [region] IS NULL")).
		WillReturnRows(columns().AddRow(int64(7), "O'Brien", nil, int64(3), updated))

	again, err := src.Get(ctx, rec.URI)
	require.NoError(t, err)
	assert.Equal(t, rec, again)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"table":      "documents",
		"id_columns": "pk",
	})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] WHERE [pk] = 42")).
		WillReturnRows(sqlmock.NewRows([]string{"pk"}))

	_, err := src.Get(context.Background(), core.EncodeURI(Scheme, "pk=42"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRejectsForeignPredicates(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"table":      "documents",
		"id_columns": "pk",
	})

	for _, id := range []string{
		"pk=1; DROP TABLE documents",
		"pk=1 OR 1=1",
		"other=1",
		"pk='unterminated",
	} {
		_, err := src.Get(context.Background(), core.EncodeURI(Scheme, id))
		require.Error(t, err, id)
		assert.True(t, errors.IsType(err, errors.ErrorTypeValidation), id)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRootURI(t *testing.T) {
	src, _ := newTestSource(t, map[string]string{
		"table":      "documents",
		"id_columns": "pk",
	})
	rec, err := src.Get(context.Background(), "sqldb://")
	require.NoError(t, err)
	assert.True(t, rec.IsContainer)
}

func TestOpenContent(t *testing.T) {
	t.Run("content column", func(t *testing.T) {
		src, mock := newTestSource(t, map[string]string{
			"table":          "documents",
			"id_columns":     "pk",
			"content_column": "body",
		})
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] WHERE [pk] = 1")).
			WillReturnRows(sqlmock.NewRows([]string{"pk", "body"}).AddRow(int64(1), []byte("hello world")))

		rc, err := src.Open(context.Background(), "sqldb://pk=1")
		require.NoError(t, err)
		defer rc.Close()
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, "hello world", string(data))
	})

	t.Run("row as json", func(t *testing.T) {
		src, mock := newTestSource(t, map[string]string{
			"table":      "documents",
			"id_columns": "pk",
		})
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] WHERE [pk] = 1")).
			WillReturnRows(sqlmock.NewRows([]string{"pk", "title"}).AddRow(int64(1), "alpha"))

		rc, err := src.Open(context.Background(), "sqldb://pk=1")
		require.NoError(t, err)
		defer rc.Close()

		var doc map[string]interface{}
		require.NoError(t, json.NewDecoder(rc).Decode(&doc))
		assert.Equal(t, float64(1), doc["pk"])
		assert.Equal(t, "alpha", doc["title"])
	})

	t.Run("deleted row", func(t *testing.T) {
		src, mock := newTestSource(t, map[string]string{
			"table":      "documents",
			"id_columns": "pk",
		})
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [documents] WHERE [pk] = 9")).
			WillReturnRows(sqlmock.NewRows([]string{"pk"}))

		_, err := src.Open(context.Background(), "sqldb://pk=9")
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestPageQueryFailureEndsListing(t *testing.T) {
	src, mock := newTestSource(t, map[string]string{
		"table":      "documents",
		"id_columns": "pk",
		"batch_size": "1",
	})

	mock.ExpectQuery("OFFSET 0 ROWS").WillReturnRows(sqlmock.NewRows([]string{"pk"}).AddRow(int64(1)))
	mock.ExpectQuery("OFFSET 1 ROWS").WillReturnError(stderrors.New("deadlock victim"))

	ctx := context.Background()
	root, _ := src.Root(ctx)
	it, err := src.List(ctx, root)
	require.NoError(t, err)

	recs, err := batch.Drain(ctx, it)
	assert.Len(t, recs, 1)
	require.Error(t, err)
	assert.True(t, errors.IsOperationFailed(err))
	assert.False(t, it.Next(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingIdColumnHonoursItemPolicy(t *testing.T) {
	for _, policy := range []string{config.ItemPolicyFail, config.ItemPolicySkip} {
		t.Run(policy, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)

			cfg := config.NewBaseConfig("docs", Scheme)
			cfg.Performance.ErrorPolicy = policy
			cfg.Properties["table"] = "documents"
			cfg.Properties["id_columns"] = "pk"
			cfg.Properties["batch_size"] = "0"

			src := NewSQLSourceWithDB(sqlx.NewDb(db, "sqlmock"))
			require.NoError(t, src.Initialize(context.Background(), cfg))

			mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"other"}).AddRow(int64(1)))

			ctx := context.Background()
			root, _ := src.Root(ctx)
			it, err := src.List(ctx, root)
			require.NoError(t, err)
			recs, err := batch.Drain(ctx, it)
			assert.Empty(t, recs)
			if policy == config.ItemPolicyFail {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeData))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPingFailureClosesHandle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(stderrors.New("login failed for user"))
	mock.ExpectClose()

	cfg := config.NewBaseConfig("docs", Scheme)
	cfg.Properties["table"] = "documents"
	cfg.Properties["id_columns"] = "pk"

	src := NewSQLSourceWithDB(sqlx.NewDb(db, "sqlmock"))
	err = src.Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConnection(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]string
		want  string
	}{
		{"no table or query", map[string]string{"id_columns": "pk"}, "table or query"},
		{"both table and query", map[string]string{"table": "a", "query": "select 1", "id_columns": "pk"}, "mutually exclusive"},
		{"no id columns", map[string]string{"table": "a"}, "id_columns"},
		{"bad batch size", map[string]string{"table": "a", "id_columns": "pk", "batch_size": "ten"}, "batch_size must be an integer"},
		{"bad order", map[string]string{"table": "a", "id_columns": "pk", "order_by": "pk sideways"}, "order_by"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			cfg := config.NewBaseConfig("docs", Scheme)
			cfg.Properties = tt.props
			src := NewSQLSourceWithDB(sqlx.NewDb(db, "sqlmock"))
			err = src.Initialize(context.Background(), cfg)
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMissingConnectionString(t *testing.T) {
	src, err := NewSQLSource(nil)
	require.NoError(t, err)

	cfg := config.NewBaseConfig("docs", Scheme)
	cfg.Properties["table"] = "documents"
	cfg.Properties["id_columns"] = "pk"
	err = src.Initialize(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "connection_string")
}
