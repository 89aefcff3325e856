package validate

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/retry"
	"github.com/validata-io/validata/verrors"
)

// sliceSink collects accepted results in delivery order.
type sliceSink struct {
	results []Result
}

func (s *sliceSink) Accept(r Result) error {
	s.results = append(s.results, r)
	return nil
}

// flakyConn fails Run a fixed number of times before delegating.
type flakyConn struct {
	*dbconn.FakeConn
	failures int32
	calls    int32
}

func (c *flakyConn) Run(
	ctx context.Context, q *querybuilder.CompiledQuery,
) ([]dbconn.Row, error) {
	if atomic.AddInt32(&c.calls, 1) <= c.failures {
		return nil, errors.New("transient failure")
	}
	return c.FakeConn.Run(ctx, q)
}

func (c *flakyConn) Clone(ctx context.Context) (dbconn.Conn, error) {
	return c, nil
}

func TestRunDeliversResultsInConfigOrder(t *testing.T) {
	ctx := context.Background()
	source := ordersConn(t, "src")
	source.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}
	target := ordersConn(t, "tgt")
	target.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}

	var cfgs []*Config
	for i := 0; i < 6; i++ {
		cfg, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
			SetThreshold(float64(i)).
			Finalize()
		require.NoError(t, err)
		cfgs = append(cfgs, cfg)
	}

	sink := &sliceSink{}
	report, err := Run(ctx, zerolog.Nop(), dbconn.OrderedConns{source, target}, cfgs, sink,
		WithConcurrency(3))
	require.NoError(t, err)
	require.Empty(t, report.Failures)
	require.Len(t, report.Results, len(cfgs))
	require.Equal(t, report.Results, sink.results)
	for i, r := range report.Results {
		require.Equal(t, VerdictMatch, r.Verdict, "result %d", i)
	}
}

func TestRunIsolatesUnitFailures(t *testing.T) {
	ctx := context.Background()
	source := ordersConn(t, "src")
	source.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}
	target := ordersConn(t, "tgt")
	target.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}

	good, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
		Finalize()
	require.NoError(t, err)
	bad, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
		AppendAggregates(AggregateSpec{
			Kind: querybuilder.AggSum, SourceColumn: "nope", TargetColumn: "nope", Alias: "sum__nope",
		}).
		Finalize()
	require.NoError(t, err)

	report, err := Run(ctx, zerolog.Nop(), dbconn.OrderedConns{source, target},
		[]*Config{bad, good}, nil)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	require.Len(t, report.Failures, 1)
	require.Same(t, bad, report.Failures[0].Config)
	require.True(t, errors.Is(report.Failures[0].Err, verrors.ErrColumnNotFound))
}

func TestRunUnitTimeout(t *testing.T) {
	ctx := context.Background()
	source := ordersConn(t, "src")
	target := ordersConn(t, "tgt")

	cfg, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
		Finalize()
	require.NoError(t, err)

	report, err := Run(ctx, zerolog.Nop(), dbconn.OrderedConns{source, target},
		[]*Config{cfg}, nil, WithUnitTimeout(time.Nanosecond))
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	require.True(t, errors.Is(report.Failures[0].Err, verrors.ErrTimeout))
}

func TestRunRetriesBackendFailures(t *testing.T) {
	ctx := context.Background()
	inner := ordersConn(t, "src")
	inner.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}
	source := &flakyConn{FakeConn: inner, failures: 2}
	target := ordersConn(t, "tgt")
	target.Results[ordersTable] = []dbconn.Row{{"count": int64(5)}}

	cfg, err := NewConfigBuilder(KindColumn, "src", "tgt", ordersTable, ordersTable).
		Finalize()
	require.NoError(t, err)

	settings := retry.Settings{
		InitialBackoff: time.Millisecond,
		Multiplier:     1,
		MaxRetries:     4,
	}
	report, err := Run(ctx, zerolog.Nop(), dbconn.OrderedConns{source, target},
		[]*Config{cfg}, nil, WithRetry(settings))
	require.NoError(t, err)
	require.Empty(t, report.Failures)
	require.Len(t, report.Results, 1)
	require.Equal(t, int32(3), source.calls)
}
