// Package report delivers reconciled validation results to their sinks:
// structured logs, a rendered table, or both.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"

	"github.com/validata-io/validata/validate"
)

// ReportableObject is anything a Reporter knows how to render. Reporters
// switch on the concrete type.
type ReportableObject interface{}

type Reporter interface {
	Report(obj ReportableObject)
	Close()
}

type CombinedReporter struct {
	Reporters []Reporter
}

func (c CombinedReporter) Report(obj ReportableObject) {
	for _, r := range c.Reporters {
		r.Report(obj)
	}
}

func (c CombinedReporter) Close() {
	for _, r := range c.Reporters {
		r.Close()
	}
}

type StatusReport struct {
	Info string
}

// LogReporter reports to `zerolog`. Matches log at debug so a clean run
// stays quiet; every other verdict is a warning.
type LogReporter struct {
	zerolog.Logger
}

func (l LogReporter) Report(obj ReportableObject) {
	switch obj := obj.(type) {
	case validate.Result:
		ev := l.Warn()
		if obj.Verdict == validate.VerdictMatch {
			ev = l.Debug()
		}
		ev.
			Str("run_id", obj.RunID.String()).
			Str("kind", string(obj.Kind)).
			Str("source_table", obj.Source.String()).
			Str("target_table", obj.Target.String()).
			Str("group", renderGroupKeys(obj.GroupKeys)).
			Str("alias", obj.Alias).
			Str("source_value", validate.RenderValue(obj.SourceValue)).
			Str("target_value", validate.RenderValue(obj.TargetValue)).
			Str("difference", obj.Difference).
			Str("pct_difference", obj.PctDifference).
			Msg(string(obj.Verdict))
	case validate.UnitFailure:
		l.Err(obj.Err).
			Str("kind", string(obj.Config.Kind)).
			Str("source_table", obj.Config.Source.String()).
			Msg("validation failed")
	case StatusReport:
		l.Info().Msg(obj.Info)
	default:
		l.Error().
			Str("type", fmt.Sprintf("%T", obj)).
			Msg("unknown object type")
	}
}

func (l LogReporter) Close() {
}

// TableReporter buffers verdicts and renders them as one table on Close.
type TableReporter struct {
	table *tablewriter.Table
}

func NewTableReporter(w io.Writer) *TableReporter {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{
		"KIND", "TABLE", "GROUP", "ALIAS", "SOURCE", "TARGET", "DIFF", "PCT", "VERDICT",
	})
	return &TableReporter{table: table}
}

func (t *TableReporter) Report(obj ReportableObject) {
	switch obj := obj.(type) {
	case validate.Result:
		t.table.Append([]string{
			string(obj.Kind),
			obj.Source.String(),
			renderGroupKeys(obj.GroupKeys),
			obj.Alias,
			validate.RenderValue(obj.SourceValue),
			validate.RenderValue(obj.TargetValue),
			obj.Difference,
			obj.PctDifference,
			string(obj.Verdict),
		})
	}
}

func (t *TableReporter) Close() {
	t.table.Render()
}

func renderGroupKeys(keys []validate.GroupKey) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k.Alias, k.Value)
	}
	return strings.Join(parts, ",")
}

// Sink adapts a Reporter to the batch runner's result sink.
type Sink struct {
	Reporter Reporter
}

func (s Sink) Accept(r validate.Result) error {
	s.Reporter.Report(r)
	return nil
}

var _ validate.Sink = Sink{}
