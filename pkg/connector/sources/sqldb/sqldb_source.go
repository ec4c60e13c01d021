// Package sqldb crawls a table or query of a relational database. Every row
// becomes a leaf record under a single root container; the record id is a
// WHERE predicate over the configured id columns, so content can be fetched
// again later with a single-row SELECT.
package sqldb

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/batch"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

// Scheme prefixes the URIs of records produced by this source.
const Scheme = "sqldb"

// SQLSource implements core.Source for a relational table or query.
type SQLSource struct {
	*base.BaseConnector

	// Configuration
	dialect   dialect
	dsn       string
	username  string
	password  string
	table     string
	query     string
	orderBy   []orderTerm
	batchSize int
	timeout   time.Duration
	mapping   mapping

	// Session
	db *sqlx.DB
}

type orderTerm struct {
	column string
	desc   bool
}

// NewSQLSource creates a new SQL source connector
func NewSQLSource(_ *config.BaseConfig) (core.Source, error) {
	return &SQLSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// NewSQLSourceWithDB creates a source over an already open handle. The
// source owns db and closes it on Close. Used with sqlmock in tests and by
// hosts that manage their own driver registration.
func NewSQLSourceWithDB(db *sqlx.DB) *SQLSource {
	return &SQLSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
		db:            db,
	}
}

// Initialize parses the configuration and opens the session.
func (s *SQLSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}
	if err := s.parseConfig(cfg); err != nil {
		return err
	}
	if err := s.open(ctx); err != nil {
		return err
	}

	s.GetMetricsCollector().SessionOpened()
	s.Closer().Push("session_gauge", func() error {
		s.GetMetricsCollector().SessionClosed()
		return nil
	})

	s.GetLogger().Info("SQL source initialized",
		zap.String("dialect", s.dialect.name),
		zap.String("source", s.sourceName()),
		zap.Strings("id_columns", s.mapping.idColumns),
		zap.Int("batch_size", s.batchSize))
	return nil
}

// parseConfig extracts configuration from the config object
func (s *SQLSource) parseConfig(cfg *config.BaseConfig) error {
	s.dialect = dialectFor(cfg.String("driver", "sqlserver"))

	s.table = cfg.String("table", "")
	s.query = cfg.String("query", "")
	if s.table == "" && s.query == "" {
		return errors.New(errors.ErrorTypeConfig, "missing required property: table or query")
	}
	if s.table != "" && s.query != "" {
		return errors.New(errors.ErrorTypeConfig, "table and query are mutually exclusive")
	}

	if s.db == nil {
		s.dsn = cfg.Secret("connection_string")
		if s.dsn == "" {
			return errors.New(errors.ErrorTypeConfig, "missing required property: connection_string")
		}
		s.username = cfg.Secret("username")
		s.password = cfg.Secret("password")
	}

	idColumns := cfg.List("id_columns")
	if len(idColumns) == 0 {
		return errors.New(errors.ErrorTypeConfig, "missing required property: id_columns")
	}

	displayColumns := cfg.List("display_columns")
	if len(displayColumns) == 0 {
		displayColumns = idColumns
	}

	s.mapping = mapping{
		scheme:         Scheme,
		idColumns:      idColumns,
		displayColumns: displayColumns,
		versionColumns: cfg.List("version_columns"),
		contentColumn:  cfg.String("content_column", ""),
	}

	order, err := parseOrderBy(cfg.List("order_by"), idColumns)
	if err != nil {
		return err
	}
	s.orderBy = order

	if s.batchSize, err = cfg.BatchSize(); err != nil {
		return err
	}
	s.timeout = cfg.Timeouts.Request
	return nil
}

// parseOrderBy accepts "col" or "col ASC|DESC" entries and defaults to the
// id columns, so every page query has a stable order.
func parseOrderBy(entries, idColumns []string) ([]orderTerm, error) {
	if len(entries) == 0 {
		out := make([]orderTerm, len(idColumns))
		for i, c := range idColumns {
			out[i] = orderTerm{column: c}
		}
		return out, nil
	}

	out := make([]orderTerm, 0, len(entries))
	for _, e := range entries {
		fields := strings.Fields(e)
		switch {
		case len(fields) == 1:
			out = append(out, orderTerm{column: fields[0]})
		case len(fields) == 2 && strings.EqualFold(fields[1], "asc"):
			out = append(out, orderTerm{column: fields[0]})
		case len(fields) == 2 && strings.EqualFold(fields[1], "desc"):
			out = append(out, orderTerm{column: fields[0], desc: true})
		default:
			return nil, errors.Newf(errors.ErrorTypeConfig, "invalid order_by entry %q", e).
				WithDetail("property", "order_by")
		}
	}
	return out, nil
}

// open establishes the session. A handle that fails its ping is closed
// before the error is returned.
func (s *SQLSource) open(ctx context.Context) error {
	if s.db == nil {
		db, err := s.dialect.open(s.dsn, s.username, s.password)
		if err != nil {
			return err
		}
		s.db = db
	}
	s.Closer().Push("db", s.db.Close)

	pingCtx := ctx
	if d := s.GetConfig().Timeouts.Connection; d > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if err := s.db.PingContext(pingCtx); err != nil {
		s.Closer().CloseAll(s.GetLogger())
		s.db = nil
		s.GetMetricsCollector().RecordError(string(errors.ErrorTypeConnection))
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to database").
			WithDetail("dialect", s.dialect.name)
	}
	return nil
}

func (s *SQLSource) sourceName() string {
	if s.table != "" {
		return s.table
	}
	return s.query
}

// Root returns the synthetic container for the table or query.
func (s *SQLSource) Root(ctx context.Context) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	rec := core.NewRecord("", core.EncodeURI(Scheme, ""), s.sourceName())
	rec.IsContainer = true
	rec.SetMetadata("dialect", s.dialect.name)
	return rec, nil
}

// List pages through the rows of the root container.
func (s *SQLSource) List(ctx context.Context, container *core.Record) (core.RecordIterator, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if container == nil || !container.IsContainer || container.ID != "" {
		return nil, errors.New(errors.ErrorTypeValidation, "sql sources have a single root container")
	}

	cursor := batch.NewCursor[row](batch.PagerFunc[row](s.fetchPage), s.batchSize,
		batch.WithConnector(s.Name(), s.GetMetricsCollector()))
	return batch.NewLister(cursor, s.mapping.mapRow, nil, batch.ListerConfig{
		Policy:    s.ItemPolicy(),
		Logger:    s.GetLogger(),
		Collector: s.GetMetricsCollector(),
	}), nil
}

// fetchPage runs one page query. Rows are closed before it returns.
func (s *SQLSource) fetchPage(ctx context.Context, offset, limit int) ([]row, error) {
	q := s.listQuery(offset, limit)
	return s.queryRows(ctx, q)
}

func (s *SQLSource) newBuilder() *stringpool.SQLBuilder {
	sb := stringpool.NewSQLBuilder(s.dialect.quote)
	sb.WriteQuery("SELECT * FROM ")
	if s.table != "" {
		sb.WriteIdentifier(s.table)
	} else {
		sb.WriteQuery("(").WriteQuery(s.query).WriteQuery(") q")
	}
	return sb
}

func (s *SQLSource) listQuery(offset, limit int) string {
	sb := s.newBuilder()
	sb.WriteQuery(" ORDER BY ")
	for i, o := range s.orderBy {
		if i > 0 {
			sb.WriteQuery(", ")
		}
		sb.WriteIdentifier(o.column)
		if o.desc {
			sb.WriteQuery(" DESC")
		}
	}
	s.dialect.writePaging(sb, offset, limit)
	return sb.String()
}

func (s *SQLSource) getQuery(terms []term) string {
	sb := s.newBuilder()
	writeWhere(sb, terms)
	return sb.String()
}

func (s *SQLSource) queryRows(ctx context.Context, q string) ([]row, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rows, err := s.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to query rows", zap.String("query", q))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeOperationFailed, "failed to read columns")
	}
	types := make([]string, len(columns))
	if colTypes, err := rows.ColumnTypes(); err == nil {
		for i, ct := range colTypes {
			types[i] = ct.DatabaseTypeName()
		}
	}

	var out []row
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeOperationFailed, "failed to scan row")
		}
		out = append(out, row{columns: columns, types: types, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to iterate rows", zap.String("query", q))
	}
	return out, nil
}

// lookup re-runs the id predicate and returns the first matching row.
func (s *SQLSource) lookup(ctx context.Context, uri string) (row, error) {
	id, err := core.DecodeURI(Scheme, uri)
	if err != nil {
		return row{}, err
	}
	terms, err := parsePredicate(id, s.mapping.idColumns)
	if err != nil {
		return row{}, err
	}

	rows, err := s.queryRows(ctx, s.getQuery(terms))
	if err != nil {
		return row{}, err
	}
	if len(rows) == 0 {
		return row{}, errors.New(errors.ErrorTypeNotFound, "no row matches record id").
			WithDetail("id", id)
	}
	if len(rows) > 1 {
		s.GetLogger().Warn("record id matches more than one row", zap.String("id", id), zap.Int("rows", len(rows)))
	}
	return rows[0], nil
}

// Get re-resolves a record. The root URI returns the root record.
func (s *SQLSource) Get(ctx context.Context, uri string) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if id, err := core.DecodeURI(Scheme, uri); err == nil && id == "" {
		return s.Root(ctx)
	}

	r, err := s.lookup(ctx, uri)
	if err != nil {
		return nil, err
	}
	return s.mapping.mapRow(r)
}

// Open returns the row content: the content column when configured,
// otherwise the row encoded as JSON.
func (s *SQLSource) Open(ctx context.Context, uri string) (_ io.ReadCloser, err error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "sqldb.open", s.Name())
	defer func() { observability.EndSpan(span, err) }()

	r, err := s.lookup(ctx, uri)
	if err != nil {
		return nil, err
	}

	var data []byte
	if col := s.mapping.contentColumn; col != "" {
		i := r.index(col)
		if i < 0 {
			return nil, errors.Newf(errors.ErrorTypeConfig, "content column %s not present in result", col)
		}
		data = contentBytes(r.values[i])
	} else {
		doc := make(map[string]interface{}, len(r.columns))
		for i, c := range r.columns {
			doc[c] = inferValue(r.types[i], r.values[i])
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode row")
		}
	}

	s.GetMetricsCollector().RecordBytes(int64(len(data)))
	return io.NopCloser(bytes.NewReader(data)), nil
}
