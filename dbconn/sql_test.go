package dbconn

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

func groupedQuery() *querybuilder.CompiledQuery {
	return &querybuilder.CompiledQuery{
		Table: dbtable.Name{Schema: "public", Table: "orders"},
		Groups: []querybuilder.CompiledGroup{
			{Column: "created_at", Alias: "created_at", Cast: querybuilder.CastDate},
		},
		Aggregates: []querybuilder.CompiledAggregate{
			{Kind: querybuilder.AggCount, Alias: "count"},
			{Kind: querybuilder.AggSum, Column: "amount", Alias: "sum__amount"},
		},
		Filters: []querybuilder.CompiledFilter{
			{
				Kind:             querybuilder.FilterGreaterThan,
				Column:           "created_at",
				Value:            "2020-01-01",
				CastColumnToDate: true,
			},
		},
		Limit: 10,
	}
}

func TestRenderQuery(t *testing.T) {
	for _, tc := range []struct {
		desc     string
		dialect  dialect
		expected string
	}{
		{
			desc:    "postgres",
			dialect: pgDialect,
			expected: `SELECT CAST("created_at" AS date) AS "created_at", COUNT(*) AS "count", ` +
				`SUM("amount") AS "sum__amount" FROM "public"."orders" ` +
				`WHERE CAST("created_at" AS date) > $1 GROUP BY 1 ORDER BY 1 LIMIT 10`,
		},
		{
			desc:    "mysql",
			dialect: mysqlDialect,
			expected: "SELECT CAST(`created_at` AS DATE) AS `created_at`, COUNT(*) AS `count`, " +
				"SUM(`amount`) AS `sum__amount` FROM `public`.`orders` " +
				"WHERE CAST(`created_at` AS DATE) > ? GROUP BY 1 ORDER BY 1 LIMIT 10",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			var args []interface{}
			sql, err := renderQuery(tc.dialect, groupedQuery(), &args)
			require.NoError(t, err)
			require.Equal(t, tc.expected, sql)
			require.Equal(t, []interface{}{"2020-01-01"}, args)
		})
	}
}

func TestRenderQueryWholeTable(t *testing.T) {
	q := &querybuilder.CompiledQuery{
		Table: dbtable.Name{Schema: "public", Table: "orders"},
		Aggregates: []querybuilder.CompiledAggregate{
			{Kind: querybuilder.AggCount, Alias: "count"},
		},
	}
	var args []interface{}
	sql, err := renderQuery(pgDialect, q, &args)
	require.NoError(t, err)
	require.Equal(t, `SELECT COUNT(*) AS "count" FROM "public"."orders"`, sql)
	require.Empty(t, args)
}

func TestRenderQueryCustomFilter(t *testing.T) {
	q := &querybuilder.CompiledQuery{
		Table: dbtable.Name{Schema: "public", Table: "orders"},
		Aggregates: []querybuilder.CompiledAggregate{
			{Kind: querybuilder.AggCount, Alias: "count"},
		},
		Filters: []querybuilder.CompiledFilter{
			{Kind: querybuilder.FilterCustom, Custom: "region IN ('emea')"},
			{Kind: querybuilder.FilterEqualTo, Column: "id", Value: 7},
		},
	}
	var args []interface{}
	sql, err := renderQuery(pgDialect, q, &args)
	require.NoError(t, err)
	require.Equal(t,
		`SELECT COUNT(*) AS "count" FROM "public"."orders" `+
			`WHERE (region IN ('emea')) AND "id" = $1`,
		sql,
	)
	require.Equal(t, []interface{}{7}, args)
}

func TestRenderQueryUnsupportedCast(t *testing.T) {
	q := &querybuilder.CompiledQuery{
		Table: dbtable.Name{Schema: "public", Table: "orders"},
		Groups: []querybuilder.CompiledGroup{
			{Column: "region", Alias: "region", Cast: "geometry"},
		},
	}
	var args []interface{}
	_, err := renderQuery(pgDialect, q, &args)
	require.Error(t, err)
	require.True(t, errors.Is(err, verrors.ErrUnsupportedCast))
}

func TestRenderJoinAndDiff(t *testing.T) {
	mk := func(table string) *querybuilder.CompiledQuery {
		return &querybuilder.CompiledQuery{
			Table: dbtable.Name{Schema: "public", Table: table},
			Groups: []querybuilder.CompiledGroup{
				{Column: "id", Alias: "id"},
			},
			Aggregates: []querybuilder.CompiledAggregate{
				{Kind: querybuilder.AggMax, Column: "amount", Alias: "max__amount"},
			},
		}
	}
	var args []interface{}
	sql, err := renderJoinAndDiff(pgDialect, mk("orders"), mk("orders_copy"), []string{"id"}, &args)
	require.NoError(t, err)
	require.Equal(t,
		`WITH src AS (SELECT "id" AS "id", MAX("amount") AS "max__amount" `+
			`FROM "public"."orders" GROUP BY 1 ORDER BY 1), `+
			`tgt AS (SELECT "id" AS "id", MAX("amount") AS "max__amount" `+
			`FROM "public"."orders_copy" GROUP BY 1 ORDER BY 1) `+
			`SELECT COALESCE(src."id", tgt."id") AS "id", `+
			`src."max__amount" AS "source__max__amount", `+
			`tgt."max__amount" AS "target__max__amount" `+
			`FROM src FULL OUTER JOIN tgt ON src."id" = tgt."id"`,
		sql,
	)
	require.Empty(t, args)
}
