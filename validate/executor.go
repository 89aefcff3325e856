package validate

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// Executor runs one validation: it builds the two structurally identical
// query plans, compiles and runs each against its own backend, and
// reconciles the result sets into verdicts.
type Executor struct {
	Logger zerolog.Logger
}

func NewExecutor(logger zerolog.Logger) *Executor {
	return &Executor{Logger: logger}
}

// Execute runs cfg against the source/target connection pair. A backend
// failure aborts this validation only, wrapped with the failing side's
// connection ID and marked verrors.ErrBackendExecution (plus
// verrors.ErrTimeout when cancellation cut it short).
func (e *Executor) Execute(
	ctx context.Context, cfg *Config, conns dbconn.OrderedConns,
) ([]Result, error) {
	meta := RunMetadata{
		RunID:     uuid.New(),
		Kind:      cfg.Kind,
		Source:    cfg.Source,
		Target:    cfg.Target,
		StartedAt: time.Now().UTC(),
	}

	srcPlan, err := cfg.SourcePlan()
	if err != nil {
		return nil, err
	}
	tgtPlan, err := cfg.TargetPlan()
	if err != nil {
		return nil, err
	}

	srcQuery, err := e.compile(ctx, srcPlan, cfg, conns.Source(), sourceSide)
	if err != nil {
		return nil, err
	}
	tgtQuery, err := e.compile(ctx, tgtPlan, cfg, conns.Target(), targetSide)
	if err != nil {
		return nil, err
	}

	groupAliases := cfg.GroupAliases()
	aggAliases := cfg.AggregateAliases()

	var srcRows, tgtRows []dbconn.Row
	if cfg.ProcessInMemory() {
		if srcRows, err = e.run(ctx, conns.Source(), srcQuery, sourceSide); err != nil {
			return nil, err
		}
		if tgtRows, err = e.run(ctx, conns.Target(), tgtQuery, targetSide); err != nil {
			return nil, err
		}
	} else {
		// Row validations delegate the join to the target backend rather
		// than materializing full tables over the network.
		joined, err := conns.Target().JoinAndDiff(ctx, srcQuery, tgtQuery, groupAliases)
		if err != nil {
			if errors.Is(err, verrors.ErrUnsupportedOperation) {
				return nil, errors.Wrapf(err, "%s validation on %s", cfg.Kind, conns.Target().ID())
			}
			return nil, errors.Wrapf(
				verrors.MarkBackendExecution(err), "running native join on target %s", conns.Target().ID())
		}
		srcRows, tgtRows = SplitJoinedRows(joined, groupAliases, aggAliases)
	}

	results := Reconcile(srcRows, tgtRows, groupAliases, aggAliases, cfg.Threshold, meta)
	e.Logger.Debug().
		Str("kind", string(cfg.Kind)).
		Str("table", cfg.Source.String()).
		Int("results", len(results)).
		Msg("validation reconciled")
	return results, nil
}

func (e *Executor) compile(
	ctx context.Context,
	plan *querybuilder.Plan,
	cfg *Config,
	conn dbconn.Conn,
	s side,
) (*querybuilder.CompiledQuery, error) {
	table := cfg.Source
	if s == targetSide {
		table = cfg.Target
	}
	q, diags, err := plan.Compile(ctx, conn, table)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %s plan on %s", s, conn.ID())
	}
	for _, d := range diags {
		e.Logger.Warn().
			Str("side", s.String()).
			Str("table", table.String()).
			Str("column", d.Column).
			Msg(d.Message)
	}
	if cfg.Verbose {
		e.Logger.Info().
			Str("side", s.String()).
			Str("table", table.String()).
			Strs("aliases", q.Aliases()).
			Msg("compiled validation query")
	}
	return q, nil
}

func (e *Executor) run(
	ctx context.Context,
	conn dbconn.Conn,
	q *querybuilder.CompiledQuery,
	s side,
) ([]dbconn.Row, error) {
	rows, err := conn.Run(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(
			verrors.MarkBackendExecution(err), "running %s query on %s", s, conn.ID())
	}
	return rows, nil
}

// SplitJoinedRows reverses the JoinAndDiff projection: each joined row
// carries the group keys bare plus each aggregate alias under the source/
// target prefixes, with a side's aliases all NULL when the group is absent
// there. The synthetic count aggregate can never be NULL, so it marks side
// presence.
func SplitJoinedRows(
	joined []dbconn.Row, groupAliases, aggAliases []string,
) (source, target []dbconn.Row) {
	for _, row := range joined {
		if sideRow, ok := splitSide(row, groupAliases, aggAliases, dbconn.SourcePrefix); ok {
			source = append(source, sideRow)
		}
		if sideRow, ok := splitSide(row, groupAliases, aggAliases, dbconn.TargetPrefix); ok {
			target = append(target, sideRow)
		}
	}
	return source, target
}

func splitSide(
	row dbconn.Row, groupAliases, aggAliases []string, prefix string,
) (dbconn.Row, bool) {
	present := false
	if v, ok := row[prefix+CountAlias]; ok {
		present = v != nil
	} else {
		for _, alias := range aggAliases {
			if row[prefix+alias] != nil {
				present = true
				break
			}
		}
	}
	if !present {
		return nil, false
	}
	sideRow := make(dbconn.Row, len(groupAliases)+len(aggAliases))
	for _, alias := range groupAliases {
		sideRow[alias] = row[alias]
	}
	for _, alias := range aggAliases {
		sideRow[alias] = row[prefix+alias]
	}
	return sideRow, true
}
