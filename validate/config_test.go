package validate

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

var ordersTable = dbtable.Name{Schema: "public", Table: "orders"}

func ordersConn(t *testing.T, id dbconn.ID) *dbconn.FakeConn {
	t.Helper()
	conn := dbconn.MakeFakeConn(id)
	conn.Catalog[ordersTable] = dbtable.Columns{
		{Name: "id", Type: "int64"},
		{Name: "amount", Type: "float64"},
		{Name: "region", Type: "string"},
		{Name: "created_at", Type: "timestamp"},
	}
	return conn
}

func TestConfigBuilderFinalize(t *testing.T) {
	for _, tc := range []struct {
		desc          string
		build         func() *ConfigBuilder
		expectedError string
	}{
		{
			desc: "column validation with no aggregates gains the count",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable)
			},
		},
		{
			desc: "unknown kind",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(Kind("Rowish"), "src", "tgt", ordersTable, ordersTable)
			},
			expectedError: `unknown validation kind "Rowish"`,
		},
		{
			desc: "missing tables",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindColumn, "src", "tgt", dbtable.Name{}, dbtable.Name{})
			},
			expectedError: "source and target tables are required",
		},
		{
			desc: "grouped column validation requires groups",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindGroupedColumn, "src", "tgt", ordersTable, ordersTable)
			},
			expectedError: "GroupedColumn validation requires grouped columns",
		},
		{
			desc: "row validation requires primary keys",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindRow, "src", "tgt", ordersTable, ordersTable)
			},
			expectedError: "Row validation requires primary keys",
		},
		{
			desc: "column validation cannot carry groups",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
					AppendGroupColumns(ColumnMapping{SourceColumn: "region", TargetColumn: "region", Alias: "region"})
			},
			expectedError: "Column validation cannot carry grouped columns",
		},
		{
			desc: "negative threshold",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
					SetThreshold(-1)
			},
			expectedError: "threshold must be >= 0",
		},
		{
			desc: "duplicate alias across aggregates and groups",
			build: func() *ConfigBuilder {
				return NewConfigBuilder(KindGroupedColumn, "src", "tgt", ordersTable, ordersTable).
					AppendAggregates(AggregateSpec{Kind: querybuilder.AggSum, SourceColumn: "amount", TargetColumn: "amount", Alias: "region"}).
					AppendGroupColumns(ColumnMapping{SourceColumn: "region", TargetColumn: "region", Alias: "region"})
			},
			expectedError: `duplicate alias "region"`,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			cfg, err := tc.build().Finalize()
			if tc.expectedError != "" {
				require.ErrorContains(t, err, tc.expectedError)
				require.True(t, errors.Is(err, verrors.ErrConfig))
				return
			}
			require.NoError(t, err)
			require.Len(t, cfg.Aggregates, 1)
			require.Equal(t, CountAlias, cfg.Aggregates[0].Alias)
		})
	}
}

func TestConfigDetachesFromBuilder(t *testing.T) {
	b := NewConfigBuilder(KindGroupedColumn, "src", "tgt", ordersTable, ordersTable).
		AppendGroupColumns(ColumnMapping{SourceColumn: "region", TargetColumn: "region", Alias: "region"})
	cfg, err := b.Finalize()
	require.NoError(t, err)

	b.AppendGroupColumns(ColumnMapping{SourceColumn: "created_at", TargetColumn: "created_at", Alias: "day"})
	require.Len(t, cfg.GroupColumns, 1)
	require.Equal(t, []string{"region"}, cfg.GroupAliases())
}

func TestRowGroupAliasesIncludePrimaryKeys(t *testing.T) {
	cfg, err := NewConfigBuilder(KindRow, "src", "tgt", ordersTable, ordersTable).
		AppendGroupColumns(ColumnMapping{SourceColumn: "region", TargetColumn: "region", Alias: "region"}).
		AppendPrimaryKeys(ColumnMapping{SourceColumn: "id", TargetColumn: "id", Alias: "id"}).
		Finalize()
	require.NoError(t, err)
	require.False(t, cfg.ProcessInMemory())
	require.Equal(t, []string{"region", "id"}, cfg.GroupAliases())
}

func TestSourceAndTargetPlansMapColumnsPerSide(t *testing.T) {
	ctx := context.Background()
	renamed := dbtable.Name{Schema: "public", Table: "orders_v2"}
	conn := ordersConn(t, "tgt")
	conn.Catalog[renamed] = dbtable.Columns{
		{Name: "order_id", Type: "int64"},
		{Name: "total", Type: "float64"},
	}

	cfg, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, renamed).
		AppendAggregates(AggregateSpec{
			Kind: querybuilder.AggSum, SourceColumn: "amount", TargetColumn: "total", Alias: "sum__amount",
		}).
		Finalize()
	require.NoError(t, err)

	srcPlan, err := cfg.SourcePlan()
	require.NoError(t, err)
	tgtPlan, err := cfg.TargetPlan()
	require.NoError(t, err)

	srcQuery, _, err := srcPlan.Compile(ctx, ordersConn(t, "src"), cfg.Source)
	require.NoError(t, err)
	tgtQuery, _, err := tgtPlan.Compile(ctx, conn, cfg.Target)
	require.NoError(t, err)

	// Same shape, same aliases, per-side column names.
	require.Equal(t, srcQuery.Aliases(), tgtQuery.Aliases())
	require.Equal(t, "amount", srcQuery.Aggregates[0].Column)
	require.Equal(t, "total", tgtQuery.Aggregates[0].Column)
}

func TestBuildColumnAggregates(t *testing.T) {
	ctx := context.Background()
	conn := ordersConn(t, "src")

	for _, tc := range []struct {
		desc            string
		columns         []string
		allowedTypes    []string
		expectedAliases []string
		expectedError   string
	}{
		{
			desc:            "wildcard restricted to numeric types",
			columns:         []string{Wildcard},
			allowedTypes:    NumericAggregateTypes,
			expectedAliases: []string{"sum__id", "sum__amount"},
		},
		{
			desc:            "wildcard without type restriction",
			columns:         []string{Wildcard},
			expectedAliases: []string{"sum__id", "sum__amount", "sum__region", "sum__created_at"},
		},
		{
			desc:            "explicit column of a disallowed type is skipped",
			columns:         []string{"region"},
			allowedTypes:    NumericAggregateTypes,
			expectedAliases: nil,
		},
		{
			desc:            "numeric spellings widen across backends",
			columns:         []string{"id"},
			allowedTypes:    []string{"bigint"},
			expectedAliases: []string{"sum__id"},
		},
		{
			desc:          "unknown column fails",
			columns:       []string{"nope"},
			allowedTypes:  NumericAggregateTypes,
			expectedError: `aggregate column "nope" not in public.orders`,
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			specs, err := BuildColumnAggregates(
				ctx, conn, ordersTable, querybuilder.AggSum, tc.columns, tc.allowedTypes)
			if tc.expectedError != "" {
				require.ErrorContains(t, err, tc.expectedError)
				require.True(t, errors.Is(err, verrors.ErrColumnNotFound))
				return
			}
			require.NoError(t, err)
			aliases := make([]string, 0, len(specs))
			for _, s := range specs {
				aliases = append(aliases, s.Alias)
			}
			if tc.expectedAliases == nil {
				require.Empty(t, aliases)
			} else {
				require.Equal(t, tc.expectedAliases, aliases)
			}
		})
	}
}

func TestBuildGroupedColumns(t *testing.T) {
	ctx := context.Background()
	conn := ordersConn(t, "src")

	mappings, err := BuildGroupedColumns(ctx, conn, ordersTable, []string{"region", "created_at"})
	require.NoError(t, err)
	require.Equal(t, []ColumnMapping{
		{SourceColumn: "region", TargetColumn: "region", Alias: "region"},
		{SourceColumn: "created_at", TargetColumn: "created_at", Alias: "created_at", Cast: querybuilder.CastDate},
	}, mappings)

	_, err = BuildGroupedColumns(ctx, conn, ordersTable, []string{"nope"})
	require.True(t, errors.Is(err, verrors.ErrColumnNotFound))
}
