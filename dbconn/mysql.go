package dbconn

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-sql-driver/mysql"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// MySQLConn is the MySQL backend adapter.
type MySQLConn struct {
	id      ID
	connStr string
	db      *sql.DB
}

var _ Conn = (*MySQLConn)(nil)

// ConnectMySQL accepts either a go-sql-driver DSN or the same DSN with a
// mysql:// scheme prefix.
func ConnectMySQL(ctx context.Context, id ID, connStr string) (*MySQLConn, error) {
	dsn := strings.TrimPrefix(connStr, "mysql://")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing mysql connection string")
	}
	if id == "" {
		id = ID(cfg.Addr)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening mysql connection %s", id)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "error connecting to %s", id)
	}
	return &MySQLConn{id: id, connStr: connStr, db: db}, nil
}

func (c *MySQLConn) ID() ID          { return c.id }
func (c *MySQLConn) Dialect() string { return mysqlDialect.name }
func (c *MySQLConn) ConnStr() string { return c.connStr }

func (c *MySQLConn) Clone(ctx context.Context) (Conn, error) {
	return ConnectMySQL(ctx, c.id, c.connStr)
}

func (c *MySQLConn) Close(ctx context.Context) error {
	return c.db.Close()
}

func (c *MySQLConn) ListColumns(
	ctx context.Context, table dbtable.Name,
) (dbtable.Columns, error) {
	rows, err := c.db.QueryContext(
		ctx,
		`SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`,
		table.Schema,
		table.Table,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing columns of %s", table)
	}
	defer func() { _ = rows.Close() }()

	var cols dbtable.Columns
	for rows.Next() {
		var col dbtable.Column
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, errors.Wrap(err, "error decoding column metadata")
		}
		col.Type = strings.ToLower(col.Type)
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error collecting columns of %s", table)
	}
	if len(cols) == 0 {
		return nil, errors.Newf("table %s has no columns or does not exist", table)
	}
	return cols, nil
}

func (c *MySQLConn) Run(
	ctx context.Context, q *querybuilder.CompiledQuery,
) ([]Row, error) {
	var args []interface{}
	stmt, err := renderQuery(mysqlDialect, q, &args)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "error running query on %s", c.id)
	}
	defer func() { _ = rows.Close() }()

	aliases := q.Aliases()
	var ret []Row
	for rows.Next() {
		vals := make([]interface{}, len(aliases))
		ptrs := make([]interface{}, len(aliases))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "error decoding result row")
		}
		row := make(Row, len(aliases))
		for i, alias := range aliases {
			// The driver hands back []byte for most non-integer types.
			if b, ok := vals[i].([]byte); ok {
				row[alias] = string(b)
				continue
			}
			row[alias] = vals[i]
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error collecting result rows on %s", c.id)
	}
	return ret, nil
}

// JoinAndDiff requires FULL OUTER JOIN, which MySQL does not support. Row
// validations against MySQL therefore fail upfront rather than emulating the
// join client-side.
func (c *MySQLConn) JoinAndDiff(
	ctx context.Context,
	source, target *querybuilder.CompiledQuery,
	joinKeys []string,
) ([]Row, error) {
	return nil, errors.Mark(
		errors.Newf("mysql backend %s cannot run native join validations", c.id),
		verrors.ErrUnsupportedOperation,
	)
}
