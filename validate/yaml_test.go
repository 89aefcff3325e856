package validate

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

func yamlTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := NewConfigBuilder(KindGroupedColumn, "orders-src", "orders-tgt", ordersTable, ordersTable).
		AppendAggregates(AggregateSpec{
			Kind: querybuilder.AggSum, SourceColumn: "amount", TargetColumn: "amount", Alias: "sum__amount",
		}).
		AppendGroupColumns(ColumnMapping{
			SourceColumn: "created_at", TargetColumn: "created_at", Alias: "created_at", Cast: querybuilder.CastDate,
		}).
		AppendFilters(FilterSpec{
			Kind: querybuilder.FilterGreaterThan, SourceColumn: "id", TargetColumn: "id", Value: 100,
		}).
		SetThreshold(0.5).
		SetLimit(10).
		SetResultHandler("table").
		Finalize()
	require.NoError(t, err)
	return cfg
}

func TestConfigYAMLRoundTrip(t *testing.T) {
	cfg := yamlTestConfig(t)

	data, err := cfg.ToYAML()
	require.NoError(t, err)

	parsed, err := ConfigFromYAML(data)
	require.NoError(t, err)
	require.Equal(t, cfg, parsed)

	// Parse then serialize reproduces the document byte for byte.
	reserialized, err := parsed.ToYAML()
	require.NoError(t, err)
	require.Equal(t, string(data), string(reserialized))
}

func TestConfigsYAMLDocument(t *testing.T) {
	countOnly, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
		Finalize()
	require.NoError(t, err)
	cfgs := []*Config{yamlTestConfig(t), countOnly}

	data, err := ConfigsToYAML(cfgs)
	require.NoError(t, err)

	parsed, err := ConfigsFromYAML(data)
	require.NoError(t, err)
	require.Equal(t, cfgs, parsed)
}

func TestConfigFromYAMLErrors(t *testing.T) {
	for _, tc := range []struct {
		desc          string
		doc           string
		expectedError string
	}{
		{
			desc:          "malformed yaml",
			doc:           "type: [",
			expectedError: "parsing validation yaml",
		},
		{
			desc: "invalid block fails finalization",
			doc: `type: Row
source_conn: src
target_conn: tgt
source:
  schema: public
  table: orders
target:
  schema: public
  table: orders
`,
			expectedError: "Row validation requires primary keys",
		},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := ConfigFromYAML([]byte(tc.doc))
			require.ErrorContains(t, err, tc.expectedError)
			require.True(t, errors.Is(err, verrors.ErrConfig))
		})
	}
}

func TestConfigsFromYAMLEmptyDocument(t *testing.T) {
	_, err := ConfigsFromYAML([]byte("validations: []\n"))
	require.True(t, errors.Is(err, verrors.ErrConfig))
}
