// Package run implements the `run` and `run-config` commands: building
// validation configs from flags or YAML and executing them.
package run

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/validata-io/validata/cmd/internal/cmdutil"
	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/report"
	"github.com/validata-io/validata/retry"
	"github.com/validata-io/validata/validate"
)

type runFlags struct {
	validationType string
	schema         string
	table          string
	targetSchema   string
	targetTable    string

	countColumns []string
	sumColumns   []string
	avgColumns   []string
	minColumns   []string
	maxColumns   []string

	groupedColumns []string
	primaryKeys    []string

	threshold   float64
	limit       int
	verbose     bool
	configFile  string
	concurrency int
	unitTimeout time.Duration
	useRetry    bool
	tableOutput bool
}

func Command() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one validation built from flags.",
		Long:  `Run builds a validation from command line flags and executes it against the source and target stores, or writes it to a config file for later runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}

			ctx := context.Background()
			conns, err := cmdutil.LoadDBConns(ctx)
			if err != nil {
				return err
			}
			defer closeConns(ctx, conns)

			cfg, err := buildConfig(ctx, conns, flags)
			if err != nil {
				return err
			}

			if flags.configFile != "" {
				data, err := validate.ConfigsToYAML([]*validate.Config{cfg})
				if err != nil {
					return err
				}
				if err := os.WriteFile(flags.configFile, data, 0o644); err != nil {
					return errors.Wrapf(err, "writing config file %s", flags.configFile)
				}
				logger.Info().Str("path", flags.configFile).Msg("validation config written")
				return nil
			}

			return execute(ctx, logger, conns, []*validate.Config{cfg}, flags)
		},
	}

	cmd.PersistentFlags().StringVar(
		&flags.validationType,
		"type",
		string(validate.KindColumn),
		"validation type to run (Column, GroupedColumn or Row)",
	)
	cmd.PersistentFlags().StringVar(
		&flags.schema,
		"schema",
		"public",
		"schema of the table to validate",
	)
	cmd.PersistentFlags().StringVar(
		&flags.table,
		"table",
		"",
		"table to validate on both stores",
	)
	cmd.PersistentFlags().StringVar(
		&flags.targetSchema,
		"target-schema",
		"",
		"target schema, when it differs from the source schema",
	)
	cmd.PersistentFlags().StringVar(
		&flags.targetTable,
		"target-table",
		"",
		"target table, when it differs from the source table",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.countColumns,
		"count",
		nil,
		"columns to count, or * for every column",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.sumColumns,
		"sum",
		nil,
		"numeric columns to sum, or * for every numeric column",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.avgColumns,
		"avg",
		nil,
		"numeric columns to average, or * for every numeric column",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.minColumns,
		"min",
		nil,
		"columns to take the minimum of, or * for every column",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.maxColumns,
		"max",
		nil,
		"columns to take the maximum of, or * for every column",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.groupedColumns,
		"grouped-columns",
		nil,
		"columns to group by (required for GroupedColumn validations)",
	)
	cmd.PersistentFlags().StringSliceVar(
		&flags.primaryKeys,
		"primary-keys",
		nil,
		"primary key columns driving the join (required for Row validations)",
	)
	cmd.PersistentFlags().Float64Var(
		&flags.threshold,
		"threshold",
		0,
		"numeric tolerance below which a difference still counts as a match",
	)
	cmd.PersistentFlags().IntVar(
		&flags.limit,
		"limit",
		0,
		"maximum number of result groups to fetch per side (0 for no limit)",
	)
	cmd.PersistentFlags().BoolVar(
		&flags.verbose,
		"verbose",
		false,
		"log the compiled queries before running them",
	)
	cmd.PersistentFlags().StringVar(
		&flags.configFile,
		"config-file",
		"",
		"write the validation config to this file instead of executing it",
	)
	registerExecutionFlags(cmd, &flags)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	return cmd
}

func ConfigCommand() *cobra.Command {
	var (
		flags      runFlags
		configFile string
	)

	cmd := &cobra.Command{
		Use:   "run-config",
		Short: "Run the validations stored in a config file.",
		Long:  `Run-config loads a validation config file written by run --config-file and executes every validation block in it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(configFile)
			if err != nil {
				return errors.Wrapf(err, "reading config file %s", configFile)
			}
			cfgs, err := validate.ConfigsFromYAML(data)
			if err != nil {
				return err
			}

			ctx := context.Background()
			conns, err := cmdutil.LoadDBConns(ctx)
			if err != nil {
				return err
			}
			defer closeConns(ctx, conns)

			return execute(ctx, logger, conns, cfgs, flags)
		},
	}

	cmd.PersistentFlags().StringVar(
		&configFile,
		"file",
		"",
		"path of the validation config file to run",
	)
	if err := cmd.MarkPersistentFlagRequired("file"); err != nil {
		panic(err)
	}
	registerExecutionFlags(cmd, &flags)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	return cmd
}

func registerExecutionFlags(cmd *cobra.Command, flags *runFlags) {
	cmd.PersistentFlags().IntVar(
		&flags.concurrency,
		"concurrency",
		validate.DefaultConcurrency,
		"number of validations to run at a time",
	)
	cmd.PersistentFlags().DurationVar(
		&flags.unitTimeout,
		"timeout",
		0,
		"maximum runtime per validation (0 for no timeout)",
	)
	cmd.PersistentFlags().BoolVar(
		&flags.useRetry,
		"retry",
		false,
		"retry validations that fail on backend errors, with backoff",
	)
	cmd.PersistentFlags().BoolVar(
		&flags.tableOutput,
		"table-output",
		false,
		"render verdicts as a table in addition to logging them",
	)
}

func buildConfig(
	ctx context.Context, conns dbconn.OrderedConns, flags runFlags,
) (*validate.Config, error) {
	if flags.table == "" {
		return nil, errors.Newf("--table is required")
	}
	source := dbtable.Name{Schema: flags.schema, Table: flags.table}
	target := source
	if flags.targetSchema != "" {
		target.Schema = flags.targetSchema
	}
	if flags.targetTable != "" {
		target.Table = flags.targetTable
	}

	b := validate.NewConfigBuilder(
		validate.Kind(flags.validationType),
		conns.Source().ConnStr(),
		conns.Target().ConnStr(),
		source,
		target,
	)
	b.AppendAggregates(validate.BuildCountAggregate())

	for _, agg := range []struct {
		kind         querybuilder.AggregateKind
		columns      []string
		allowedTypes []string
	}{
		{kind: querybuilder.AggCount, columns: flags.countColumns},
		{kind: querybuilder.AggSum, columns: flags.sumColumns, allowedTypes: validate.NumericAggregateTypes},
		{kind: querybuilder.AggAvg, columns: flags.avgColumns, allowedTypes: validate.NumericAggregateTypes},
		{kind: querybuilder.AggMin, columns: flags.minColumns},
		{kind: querybuilder.AggMax, columns: flags.maxColumns},
	} {
		if len(agg.columns) == 0 {
			continue
		}
		specs, err := validate.BuildColumnAggregates(
			ctx, conns.Source(), source, agg.kind, agg.columns, agg.allowedTypes)
		if err != nil {
			return nil, err
		}
		b.AppendAggregates(specs...)
	}

	if len(flags.groupedColumns) > 0 {
		mappings, err := validate.BuildGroupedColumns(ctx, conns.Source(), source, flags.groupedColumns)
		if err != nil {
			return nil, err
		}
		b.AppendGroupColumns(mappings...)
	}
	for _, pk := range flags.primaryKeys {
		b.AppendPrimaryKeys(validate.ColumnMapping{
			SourceColumn: pk,
			TargetColumn: pk,
			Alias:        pk,
		})
	}

	handler := "log"
	if flags.tableOutput {
		handler = "table"
	}
	return b.SetThreshold(flags.threshold).
		SetLimit(flags.limit).
		SetResultHandler(handler).
		SetVerbose(flags.verbose).
		Finalize()
}

func execute(
	ctx context.Context,
	logger zerolog.Logger,
	conns dbconn.OrderedConns,
	cfgs []*validate.Config,
	flags runFlags,
) error {
	reporter := report.CombinedReporter{}
	reporter.Reporters = append(reporter.Reporters, report.LogReporter{Logger: logger})
	if flags.tableOutput {
		reporter.Reporters = append(reporter.Reporters, report.NewTableReporter(os.Stdout))
	}
	defer reporter.Close()

	opts := []validate.RunOption{validate.WithConcurrency(flags.concurrency)}
	if flags.unitTimeout > 0 {
		opts = append(opts, validate.WithUnitTimeout(flags.unitTimeout))
	}
	if flags.useRetry {
		opts = append(opts, validate.WithRetry(retry.DefaultSettings()))
	}

	reporter.Report(report.StatusReport{Info: "validation in progress"})
	runReport, err := validate.Run(ctx, logger, conns, cfgs, report.Sink{Reporter: reporter}, opts...)
	if err != nil {
		return errors.Wrapf(err, "error validating")
	}
	for _, failure := range runReport.Failures {
		reporter.Report(failure)
	}
	reporter.Report(report.StatusReport{Info: "validation complete"})

	if len(runReport.Failures) > 0 {
		return errors.Newf("%d of %d validations failed", len(runReport.Failures), len(cfgs))
	}
	return nil
}

func closeConns(ctx context.Context, conns dbconn.OrderedConns) {
	for _, conn := range conns {
		_ = conn.Close(ctx)
	}
}
