package dbconn

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
)

// PGConn is the PostgreSQL backend adapter. It also serves warehouses that
// speak the postgres wire protocol.
type PGConn struct {
	id      ID
	connStr string
	conn    *pgx.Conn
}

var _ Conn = (*PGConn)(nil)

func ConnectPG(ctx context.Context, id ID, connStr string) (*PGConn, error) {
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing postgres connection string")
	}
	if id == "" {
		id = ID(cfg.Host)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", id)
	}
	return &PGConn{id: id, connStr: connStr, conn: conn}, nil
}

func (c *PGConn) ID() ID          { return c.id }
func (c *PGConn) Dialect() string { return pgDialect.name }
func (c *PGConn) ConnStr() string { return c.connStr }

func (c *PGConn) Clone(ctx context.Context) (Conn, error) {
	return ConnectPG(ctx, c.id, c.connStr)
}

func (c *PGConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func (c *PGConn) ListColumns(
	ctx context.Context, table dbtable.Name,
) (dbtable.Columns, error) {
	rows, err := c.conn.Query(
		ctx,
		`SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`,
		table.Schema,
		table.Table,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing columns of %s", table)
	}
	defer rows.Close()

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

func (c *PGConn) Run(
	ctx context.Context, q *querybuilder.CompiledQuery,
) ([]Row, error) {
	var args []interface{}
	sql, err := renderQuery(pgDialect, q, &args)
	if err != nil {
		return nil, err
	}
	return c.query(ctx, sql, args, q.Aliases())
}

func (c *PGConn) JoinAndDiff(
	ctx context.Context,
	source, target *querybuilder.CompiledQuery,
	joinKeys []string,
) ([]Row, error) {
	var args []interface{}
	sql, err := renderJoinAndDiff(pgDialect, source, target, joinKeys, &args)
	if err != nil {
		return nil, err
	}
	aliases := make([]string, 0, len(joinKeys)+len(source.Aggregates)+len(target.Aggregates))
	aliases = append(aliases, joinKeys...)
	for _, a := range source.Aggregates {
		aliases = append(aliases, SourcePrefix+a.Alias)
	}
	for _, a := range target.Aggregates {
		aliases = append(aliases, TargetPrefix+a.Alias)
	}
	return c.query(ctx, sql, args, aliases)
}

func (c *PGConn) query(
	ctx context.Context, sql string, args []interface{}, aliases []string,
) ([]Row, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "error running query on %s", c.id)
	}
	defer rows.Close()

	var ret []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "error decoding result row")
		}
		if len(vals) != len(aliases) {
			return nil, errors.AssertionFailedf(
				"expected %d result columns, got %d", len(aliases), len(vals))
		}
		row := make(Row, len(aliases))
		for i, alias := range aliases {
			row[alias] = vals[i]
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error collecting result rows on %s", c.id)
	}
	return ret, nil
}
