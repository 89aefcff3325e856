package validate

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/retry"
	"github.com/validata-io/validata/verrors"
)

// DefaultConcurrency bounds the validation worker pool unless overridden.
const DefaultConcurrency = 8

// Sink receives reconciled results one at a time, in unit order. Accept
// errors abort the run.
type Sink interface {
	Accept(Result) error
}

type runOpts struct {
	concurrency int
	unitTimeout time.Duration
	retry       *retry.Settings
}

type RunOption func(*runOpts)

// WithConcurrency bounds the number of validations running at once.
func WithConcurrency(n int) RunOption {
	return func(o *runOpts) { o.concurrency = n }
}

// WithUnitTimeout caps each validation's runtime. An expired unit fails with
// an error marked verrors.ErrTimeout.
func WithUnitTimeout(d time.Duration) RunOption {
	return func(o *runOpts) { o.unitTimeout = d }
}

// WithRetry re-runs units that failed on a backend execution error, with
// backoff. Config errors are never retried.
func WithRetry(settings retry.Settings) RunOption {
	return func(o *runOpts) { o.retry = &settings }
}

// UnitFailure records one validation that could not produce verdicts.
type UnitFailure struct {
	Config *Config
	Err    error
}

// RunReport is the outcome of a batch run. Failures are per-unit; a failed
// unit never hides the others' results.
type RunReport struct {
	Results  []Result
	Failures []UnitFailure
}

// Run executes each config against the connection pair using a bounded
// worker pool. Every worker clones its own connection handles per unit, so
// the shared pair only needs to support Clone concurrently. Results are
// delivered to sink (when non-nil) and reported in config order regardless
// of completion order.
func Run(
	ctx context.Context,
	logger zerolog.Logger,
	conns dbconn.OrderedConns,
	cfgs []*Config,
	sink Sink,
	opts ...RunOption,
) (*RunReport, error) {
	o := runOpts{concurrency: DefaultConcurrency}
	for _, apply := range opts {
		apply(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	exec := NewExecutor(logger)

	type unit struct {
		idx int
		cfg *Config
	}
	work := make(chan unit)

	unitResults := make([][]Result, len(cfgs))
	unitErrs := make([]error, len(cfgs))

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < o.concurrency; i++ {
		g.Go(func() error {
			for u := range work {
				results, err := runUnit(gCtx, exec, conns, u.cfg, o)
				if err != nil {
					logger.Err(err).
						Str("kind", string(u.cfg.Kind)).
						Str("table", u.cfg.Source.String()).
						Msg("validation failed")
					unitErrs[u.idx] = err
					continue
				}
				unitResults[u.idx] = results
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(work)
		for i, cfg := range cfgs {
			select {
			case work <- unit{idx: i, cfg: cfg}:
			case <-gCtx.Done():
				return gCtx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &RunReport{}
	for i, cfg := range cfgs {
		if err := unitErrs[i]; err != nil {
			report.Failures = append(report.Failures, UnitFailure{Config: cfg, Err: err})
			continue
		}
		for _, result := range unitResults[i] {
			if sink != nil {
				if err := sink.Accept(result); err != nil {
					return nil, errors.Wrap(err, "delivering result")
				}
			}
			report.Results = append(report.Results, result)
		}
	}
	return report, nil
}

func runUnit(
	ctx context.Context,
	exec *Executor,
	conns dbconn.OrderedConns,
	cfg *Config,
	o runOpts,
) ([]Result, error) {
	source, err := conns.Source().Clone(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cloning source connection")
	}
	defer func() { _ = source.Close(ctx) }()
	target, err := conns.Target().Clone(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cloning target connection")
	}
	defer func() { _ = target.Close(ctx) }()
	unitConns := dbconn.OrderedConns{source, target}

	run := func(ctx context.Context) ([]Result, error) {
		if o.unitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.unitTimeout)
			defer cancel()
		}
		return exec.Execute(ctx, cfg, unitConns)
	}

	if o.retry == nil {
		return run(ctx)
	}
	var results []Result
	err = retry.Do(
		ctx,
		*o.retry,
		func(err error) bool { return errors.Is(err, verrors.ErrBackendExecution) },
		func(ctx context.Context) error {
			var runErr error
			results, runErr = run(ctx)
			return runErr
		},
	)
	return results, err
}
