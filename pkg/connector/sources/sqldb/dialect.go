package sqldb

import (
	"database/sql"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

// pagingStyle selects the paging clause appended to list queries.
type pagingStyle int

const (
	// pagingOffsetFetch renders OFFSET n ROWS FETCH NEXT m ROWS ONLY
	pagingOffsetFetch pagingStyle = iota
	// pagingLimitOffset renders LIMIT m OFFSET n
	pagingLimitOffset
)

// dialect captures what differs between database products.
type dialect struct {
	name   string
	quote  stringpool.QuoteStyle
	paging pagingStyle
	open   func(dsn, username, password string) (*sqlx.DB, error)
}

func dialectFor(driver string) dialect {
	switch strings.ToLower(driver) {
	case "", "sqlserver", "mssql":
		return dialect{name: "sqlserver", quote: stringpool.QuoteBracket, paging: pagingOffsetFetch, open: openSQLServer}
	case "mysql", "mariadb":
		return dialect{name: "mysql", quote: stringpool.QuoteBacktick, paging: pagingLimitOffset, open: openMySQL}
	case "postgres", "postgresql", "pgx":
		return dialect{name: "postgres", quote: stringpool.QuoteANSI, paging: pagingLimitOffset, open: openPostgres}
	default:
		// Any other registered database/sql driver; ANSI quoting and the
		// SQL:2008 paging clause cover Oracle 12c+, DB2 and Derby.
		return dialect{name: driver, quote: stringpool.QuoteANSI, paging: pagingOffsetFetch, open: openGeneric(driver)}
	}
}

// writePaging appends the paging clause. limit <= 0 writes nothing.
func (d dialect) writePaging(sb *stringpool.SQLBuilder, offset, limit int) {
	if limit <= 0 {
		return
	}
	switch d.paging {
	case pagingLimitOffset:
		sb.WriteQuery(" LIMIT ").WriteInt(int64(limit)).
			WriteQuery(" OFFSET ").WriteInt(int64(offset))
	default:
		sb.WriteQuery(" OFFSET ").WriteInt(int64(offset)).
			WriteQuery(" ROWS FETCH NEXT ").WriteInt(int64(limit)).
			WriteQuery(" ROWS ONLY")
	}
}

func openSQLServer(dsn, username, password string) (*sqlx.DB, error) {
	cfg, err := mssqlConfig(dsn, username, password)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(sql.OpenDB(mssql.NewConnectorConfig(cfg)), "sqlserver"), nil
}

// mssqlConfig parses a sqlserver:// URL, ADO or ODBC connection string and
// sets the credentials on the parsed config, so no value needs escaping.
// Credentials override any user in the DSN.
func mssqlConfig(dsn, username, password string) (msdsn.Config, error) {
	cfg, err := msdsn.Parse(dsn)
	if err != nil {
		return msdsn.Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid sqlserver connection string")
	}
	if username != "" {
		cfg.User = username
		cfg.Password = password
	}
	return cfg, nil
}

func openMySQL(dsn, username, password string) (*sqlx.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql connection string")
	}
	if username != "" {
		cfg.User = username
		cfg.Passwd = password
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mysql configuration")
	}
	return sqlx.NewDb(sql.OpenDB(connector), "mysql"), nil
}

func openPostgres(dsn, username, password string) (*sqlx.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid postgres connection string")
	}
	if username != "" {
		cfg.User = username
		cfg.Password = password
	}
	return sqlx.NewDb(stdlib.OpenDB(*cfg), "pgx"), nil
}

func openGeneric(driver string) func(dsn, username, password string) (*sqlx.DB, error) {
	return func(dsn, _, _ string) (*sqlx.DB, error) {
		db, err := sqlx.Open(driver, dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown database driver").
				WithDetail("driver", driver)
		}
		return db, nil
	}
}
