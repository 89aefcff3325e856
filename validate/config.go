// Package validate implements the validation configuration model, the
// executor that runs one validation against a source and target backend,
// the reconciler that turns the two result sets into verdicts, and the
// batch runner that executes many validations concurrently.
package validate

import (
	"context"
	"fmt"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// Kind is the validation kind.
type Kind string

const (
	// KindColumn compares whole-table aggregates.
	KindColumn Kind = "Column"
	// KindGroupedColumn compares aggregates bucketed by group columns.
	KindGroupedColumn Kind = "GroupedColumn"
	// KindRow compares per-row values keyed by primary key, using the
	// backend's native join capability.
	KindRow Kind = "Row"
)

func (k Kind) Valid() bool {
	switch k {
	case KindColumn, KindGroupedColumn, KindRow:
		return true
	}
	return false
}

// Wildcard in a column list selects every column of the source catalog.
const Wildcard = "*"

// CountAlias is the alias of the synthetic whole-table count aggregate that
// every validation carries.
const CountAlias = "count"

// ColumnMapping ties a source column to its target counterpart and the
// output alias both sides project it under.
type ColumnMapping struct {
	SourceColumn string
	TargetColumn string
	Alias        string
	Cast         string
}

// AggregateSpec is one aggregate to compute on both sides.
type AggregateSpec struct {
	Kind         querybuilder.AggregateKind
	SourceColumn string
	TargetColumn string
	Alias        string
}

// FilterSpec is one predicate applied to both sides, with the column name
// resolved per side.
type FilterSpec struct {
	Kind         querybuilder.FilterKind
	SourceColumn string
	TargetColumn string
	Value        interface{}
	Custom       string
}

// Config is one finalized validation. It is immutable once built; the
// Executor never mutates it.
type Config struct {
	Kind Kind

	// Connection descriptors: connection strings or registry names,
	// resolved by the caller before execution.
	SourceConn string
	TargetConn string

	Source dbtable.Name
	Target dbtable.Name

	Aggregates   []AggregateSpec
	GroupColumns []ColumnMapping
	PrimaryKeys  []ColumnMapping
	Filters      []FilterSpec

	// Threshold is the pass-through numeric tolerance: a group matches when
	// the absolute difference is at most Threshold. Zero means exact.
	Threshold float64
	Limit     int

	// ResultHandler describes the result sink, opaque to the core.
	ResultHandler string
	Verbose       bool
}

// ProcessInMemory reports whether both sides are executed independently and
// diffed in memory. Row validations instead delegate to the backend's native
// join, since joining full tables across the network does not scale.
func (c *Config) ProcessInMemory() bool {
	return c.Kind != KindRow
}

// GroupAliases returns the reconciliation join keys, in plan order.
func (c *Config) GroupAliases() []string {
	var aliases []string
	for _, g := range c.groupFields() {
		aliases = append(aliases, g.Alias)
	}
	return aliases
}

// AggregateAliases returns the aggregate output aliases, in plan order.
func (c *Config) AggregateAliases() []string {
	aliases := make([]string, len(c.Aggregates))
	for i, a := range c.Aggregates {
		aliases[i] = a.Alias
	}
	return aliases
}

// groupFields returns the effective group-by mappings: the group columns,
// plus the primary keys for Row validations (primary keys drive the join;
// group columns add bucketing).
func (c *Config) groupFields() []ColumnMapping {
	if c.Kind != KindRow {
		return c.GroupColumns
	}
	fields := make([]ColumnMapping, 0, len(c.GroupColumns)+len(c.PrimaryKeys))
	fields = append(fields, c.GroupColumns...)
	fields = append(fields, c.PrimaryKeys...)
	return fields
}

type side int

const (
	sourceSide side = iota
	targetSide
)

func (s side) String() string {
	if s == sourceSide {
		return "source"
	}
	return "target"
}

func (m ColumnMapping) column(s side) string {
	if s == sourceSide {
		return m.SourceColumn
	}
	return m.TargetColumn
}

func (a AggregateSpec) column(s side) string {
	if s == sourceSide {
		return a.SourceColumn
	}
	return a.TargetColumn
}

func (f FilterSpec) column(s side) string {
	if s == sourceSide {
		return f.SourceColumn
	}
	return f.TargetColumn
}

// SourcePlan builds the source-shaped query plan.
func (c *Config) SourcePlan() (*querybuilder.Plan, error) {
	return c.buildPlan(sourceSide)
}

// TargetPlan builds the target-shaped query plan. It is structurally
// identical to the source plan; only column names differ.
func (c *Config) TargetPlan() (*querybuilder.Plan, error) {
	return c.buildPlan(targetSide)
}

func (c *Config) buildPlan(s side) (*querybuilder.Plan, error) {
	p := querybuilder.NewPlan()
	for _, a := range c.Aggregates {
		f := querybuilder.AggregateField{
			Kind:   a.Kind,
			Column: a.column(s),
			Alias:  a.Alias,
		}
		if err := p.AddAggregate(f); err != nil {
			return nil, err
		}
	}
	for _, flt := range c.Filters {
		f := querybuilder.FilterField{
			Kind:   flt.Kind,
			Column: flt.column(s),
			Value:  flt.Value,
			Custom: flt.Custom,
		}
		if err := p.AddFilter(f); err != nil {
			return nil, err
		}
	}
	for _, g := range c.groupFields() {
		f := querybuilder.GroupedField{
			Column: g.column(s),
			Alias:  g.Alias,
			Cast:   g.Cast,
		}
		if err := p.AddGroup(f); err != nil {
			return nil, err
		}
	}
	p.SetLimit(c.Limit)
	return p, nil
}

// ConfigBuilder assembles a Config incrementally. Finalize validates the
// assembled state and hands out an immutable Config; the builder's slices
// are copied so later appends cannot reach a finalized Config.
type ConfigBuilder struct {
	cfg Config
}

func NewConfigBuilder(kind Kind, sourceConn, targetConn string, source, target dbtable.Name) *ConfigBuilder {
	return &ConfigBuilder{cfg: Config{
		Kind:       kind,
		SourceConn: sourceConn,
		TargetConn: targetConn,
		Source:     source,
		Target:     target,
	}}
}

func (b *ConfigBuilder) AppendAggregates(specs ...AggregateSpec) *ConfigBuilder {
	b.cfg.Aggregates = append(b.cfg.Aggregates, specs...)
	return b
}

func (b *ConfigBuilder) AppendGroupColumns(mappings ...ColumnMapping) *ConfigBuilder {
	b.cfg.GroupColumns = append(b.cfg.GroupColumns, mappings...)
	return b
}

func (b *ConfigBuilder) AppendPrimaryKeys(mappings ...ColumnMapping) *ConfigBuilder {
	b.cfg.PrimaryKeys = append(b.cfg.PrimaryKeys, mappings...)
	return b
}

func (b *ConfigBuilder) AppendFilters(filters ...FilterSpec) *ConfigBuilder {
	b.cfg.Filters = append(b.cfg.Filters, filters...)
	return b
}

func (b *ConfigBuilder) SetThreshold(threshold float64) *ConfigBuilder {
	b.cfg.Threshold = threshold
	return b
}

func (b *ConfigBuilder) SetLimit(limit int) *ConfigBuilder {
	b.cfg.Limit = limit
	return b
}

func (b *ConfigBuilder) SetResultHandler(handler string) *ConfigBuilder {
	b.cfg.ResultHandler = handler
	return b
}

func (b *ConfigBuilder) SetVerbose(verbose bool) *ConfigBuilder {
	b.cfg.Verbose = verbose
	return b
}

// Finalize validates the assembled config and returns it. A config without
// aggregates gains the synthetic whole-table count, so every validation
// produces at least one verdict.
func (b *ConfigBuilder) Finalize() (*Config, error) {
	cfg := b.cfg

	if !cfg.Kind.Valid() {
		return nil, verrors.Configf("unknown validation kind %q", cfg.Kind)
	}
	if cfg.Source.Table == "" || cfg.Target.Table == "" {
		return nil, verrors.Configf("source and target tables are required")
	}
	if cfg.Kind == KindGroupedColumn && len(cfg.GroupColumns) == 0 {
		return nil, verrors.Configf("%s validation requires grouped columns", cfg.Kind)
	}
	if cfg.Kind == KindRow && len(cfg.PrimaryKeys) == 0 {
		return nil, verrors.Configf("%s validation requires primary keys", cfg.Kind)
	}
	if cfg.Kind == KindColumn && len(cfg.GroupColumns) > 0 {
		return nil, verrors.Configf("%s validation cannot carry grouped columns", cfg.Kind)
	}
	if cfg.Threshold < 0 {
		return nil, verrors.Configf("threshold must be >= 0, got %f", cfg.Threshold)
	}

	if len(cfg.Aggregates) == 0 {
		cfg.Aggregates = []AggregateSpec{BuildCountAggregate()}
	}

	seen := map[string]struct{}{}
	claim := func(alias, what string) error {
		if alias == "" {
			return verrors.Configf("%s requires an alias", what)
		}
		if _, ok := seen[alias]; ok {
			return verrors.Configf("duplicate alias %q across %s fields", alias, what)
		}
		seen[alias] = struct{}{}
		return nil
	}
	for _, a := range cfg.Aggregates {
		if err := claim(a.Alias, fmt.Sprintf("aggregate %s", a.Kind)); err != nil {
			return nil, err
		}
	}
	for _, g := range cfg.groupFields() {
		if err := claim(g.Alias, "group"); err != nil {
			return nil, err
		}
	}

	// Detach from the builder's backing arrays.
	cfg.Aggregates = append([]AggregateSpec(nil), cfg.Aggregates...)
	cfg.GroupColumns = append([]ColumnMapping(nil), cfg.GroupColumns...)
	cfg.PrimaryKeys = append([]ColumnMapping(nil), cfg.PrimaryKeys...)
	cfg.Filters = append([]FilterSpec(nil), cfg.Filters...)

	return &cfg, nil
}

// BuildCountAggregate returns the synthetic whole-table count aggregate.
func BuildCountAggregate() AggregateSpec {
	return AggregateSpec{Kind: querybuilder.AggCount, Alias: CountAlias}
}

// BuildColumnAggregates expands a user column list into aggregate specs
// against the live source catalog. The Wildcard selects every catalog
// column. When allowedTypes is non-empty, only columns whose declared type
// is in the set are kept; explicitly named columns of other types are
// silently skipped, but unknown names fail with ErrColumnNotFound.
func BuildColumnAggregates(
	ctx context.Context,
	catalog querybuilder.Catalog,
	table dbtable.Name,
	kind querybuilder.AggregateKind,
	columns []string,
	allowedTypes []string,
) ([]AggregateSpec, error) {
	cols, err := catalog.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	requested := columns
	if len(columns) == 1 && columns[0] == Wildcard {
		requested = cols.Names()
	}

	allowed := map[string]struct{}{}
	for _, t := range allowedTypes {
		allowed[t] = struct{}{}
	}

	var specs []AggregateSpec
	for _, name := range requested {
		col, ok := cols.Lookup(name)
		if !ok {
			return nil, verrors.ColumnNotFoundf(
				"aggregate column %q not in %s", name, table)
		}
		if len(allowed) > 0 && !typeAllowed(col.Type, allowed) {
			continue
		}
		specs = append(specs, AggregateSpec{
			Kind:         kind,
			SourceColumn: name,
			TargetColumn: name,
			Alias:        fmt.Sprintf("%s__%s", kind, name),
		})
	}
	return specs, nil
}

// BuildGroupedColumns resolves a group-by column list against the live
// source catalog, applying the date-truncation default to temporal columns.
func BuildGroupedColumns(
	ctx context.Context,
	catalog querybuilder.Catalog,
	table dbtable.Name,
	columns []string,
) ([]ColumnMapping, error) {
	cols, err := catalog.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}

	mappings := make([]ColumnMapping, 0, len(columns))
	for _, name := range columns {
		col, ok := cols.Lookup(name)
		if !ok {
			return nil, verrors.ColumnNotFoundf(
				"grouped column %q not in %s", name, table)
		}
		m := ColumnMapping{
			SourceColumn: name,
			TargetColumn: name,
			Alias:        name,
		}
		if dbtable.IsTemporalType(col.Type) {
			m.Cast = querybuilder.CastDate
		}
		mappings = append(mappings, m)
	}
	return mappings, nil
}

// typeAllowed reports whether a declared column type is in the allowed set.
// Backends spell numeric types differently (int64, bigint, numeric...), so a
// numeric column satisfies any allowed set that names a numeric type.
func typeAllowed(colType string, allowed map[string]struct{}) bool {
	if _, ok := allowed[colType]; ok {
		return true
	}
	if dbtable.IsNumericType(colType) {
		for t := range allowed {
			if dbtable.IsNumericType(t) {
				return true
			}
		}
	}
	return false
}

// NumericAggregateTypes is the default allowed-type set for sum/avg/min/max.
var NumericAggregateTypes = []string{"int64", "float64"}
