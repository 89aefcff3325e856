package querybuilder

import (
	"context"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/verrors"
)

// Catalog is the slice of the backend client capability that Compile needs:
// listing the column catalog of a live table.
type Catalog interface {
	ListColumns(ctx context.Context, table dbtable.Name) (dbtable.Columns, error)
}

// CastDate truncates a temporal column to date granularity. It is the
// default cast applied to temporal group columns.
const CastDate = "date"

var supportedCasts = map[string]struct{}{
	CastDate:  {},
	"string":  {},
	"int64":   {},
	"float64": {},
}

// Plan is an ordered, backend-neutral aggregation query plan. Fields are
// appended while building; Compile resolves them against a table catalog.
// The zero limit means no limit.
type Plan struct {
	aggregates []AggregateField
	filters    []FilterField
	groups     []GroupedField
	limit      int

	aliases map[string]struct{}
}

func NewPlan() *Plan {
	return &Plan{aliases: map[string]struct{}{}}
}

func (p *Plan) claimAlias(alias string) error {
	if _, ok := p.aliases[alias]; ok {
		return verrors.Configf("duplicate alias %q in plan", alias)
	}
	p.aliases[alias] = struct{}{}
	return nil
}

// AddAggregate appends an aggregate field. The alias must be unique across
// all aggregates and group fields in the plan.
func (p *Plan) AddAggregate(f AggregateField) error {
	if err := f.validate(); err != nil {
		return err
	}
	if err := p.claimAlias(f.Alias); err != nil {
		return err
	}
	p.aggregates = append(p.aggregates, f)
	return nil
}

// AddFilter appends a filter predicate. Filters compose as a logical AND.
func (p *Plan) AddFilter(f FilterField) error {
	if err := f.validate(); err != nil {
		return err
	}
	p.filters = append(p.filters, f)
	return nil
}

// AddGroup appends a group-by field. An empty alias defaults to the column
// name.
func (p *Plan) AddGroup(f GroupedField) error {
	if f.Column == "" {
		return verrors.Configf("group field requires a column")
	}
	if f.Alias == "" {
		f.Alias = f.Column
	}
	if err := p.claimAlias(f.Alias); err != nil {
		return err
	}
	p.groups = append(p.groups, f)
	return nil
}

func (p *Plan) SetLimit(limit int) {
	p.limit = limit
}

// GroupAliases returns the output aliases of the group fields, in order.
// These are the join keys for reconciliation.
func (p *Plan) GroupAliases() []string {
	aliases := make([]string, len(p.groups))
	for i, g := range p.groups {
		alias := g.Alias
		if alias == "" {
			alias = g.Column
		}
		aliases[i] = alias
	}
	return aliases
}

// AggregateAliases returns the output aliases of the aggregate fields, in
// order.
func (p *Plan) AggregateAliases() []string {
	aliases := make([]string, len(p.aggregates))
	for i, a := range p.aggregates {
		aliases[i] = a.Alias
	}
	return aliases
}

// CompiledAggregate is an aggregate resolved against the table catalog.
type CompiledAggregate struct {
	Kind   AggregateKind
	Column string
	Alias  string
}

// CompiledFilter is a filter resolved against the table catalog.
// CastColumnToDate is set when the filtered column is temporal, so adapters
// compare at date granularity on both sides.
type CompiledFilter struct {
	Kind             FilterKind
	Column           string
	Value            interface{}
	Custom           string
	CastColumnToDate bool
}

// CompiledGroup is a group-by column with its cast resolved. An empty Cast
// means the column value passes through unchanged.
type CompiledGroup struct {
	Column string
	Alias  string
	Cast   string
}

// CompiledQuery is the inert, fully-resolved form of a Plan for one table.
// It performs no I/O itself; a backend adapter renders it into the native
// dialect and runs it.
type CompiledQuery struct {
	Table      dbtable.Name
	Aggregates []CompiledAggregate
	Filters    []CompiledFilter
	Groups     []CompiledGroup
	Limit      int
}

// Aliases returns the projection aliases in output order: group columns
// first, then aggregates.
func (q *CompiledQuery) Aliases() []string {
	aliases := make([]string, 0, len(q.Groups)+len(q.Aggregates))
	for _, g := range q.Groups {
		aliases = append(aliases, g.Alias)
	}
	for _, a := range q.Aggregates {
		aliases = append(aliases, a.Alias)
	}
	return aliases
}

// Diagnostic is a non-fatal compilation note, surfaced to the caller instead
// of being printed from library code.
type Diagnostic struct {
	Column  string
	Message string
}

// Compile resolves the plan against the live column catalog of table.
// Referenced columns must exist (verrors.ErrColumnNotFound otherwise) and
// explicit casts must be expressible (verrors.ErrUnsupportedCast). A
// non-temporal group column without an explicit cast compiles without a cast
// and yields a warning diagnostic.
func (p *Plan) Compile(
	ctx context.Context, catalog Catalog, table dbtable.Name,
) (*CompiledQuery, []Diagnostic, error) {
	cols, err := catalog.ListColumns(ctx, table)
	if err != nil {
		return nil, nil, err
	}

	ret := &CompiledQuery{Table: table, Limit: p.limit}
	var diags []Diagnostic

	for _, f := range p.aggregates {
		if f.Column != "" {
			if _, ok := cols.Lookup(f.Column); !ok {
				return nil, nil, verrors.ColumnNotFoundf(
					"aggregate %q: column %q not in %s", f.Alias, f.Column, table)
			}
		}
		ret.Aggregates = append(ret.Aggregates, CompiledAggregate{
			Kind:   f.Kind,
			Column: f.Column,
			Alias:  f.Alias,
		})
	}

	for _, f := range p.filters {
		cf := CompiledFilter{
			Kind:   f.Kind,
			Column: f.Column,
			Value:  f.Value,
			Custom: f.Custom,
		}
		if f.Kind != FilterCustom {
			col, ok := cols.Lookup(f.Column)
			if !ok {
				return nil, nil, verrors.ColumnNotFoundf(
					"filter on column %q not in %s", f.Column, table)
			}
			cf.CastColumnToDate = dbtable.IsTemporalType(col.Type)
		}
		ret.Filters = append(ret.Filters, cf)
	}

	for _, g := range p.groups {
		col, ok := cols.Lookup(g.Column)
		if !ok {
			return nil, nil, verrors.ColumnNotFoundf(
				"group column %q not in %s", g.Column, table)
		}
		alias := g.Alias
		if alias == "" {
			alias = g.Column
		}
		cast := g.Cast
		switch {
		case cast != "":
			if _, supported := supportedCasts[cast]; !supported {
				return nil, nil, verrors.UnsupportedCastf(
					"cast %q on group column %q", cast, g.Column)
			}
		case dbtable.IsTemporalType(col.Type):
			cast = CastDate
		default:
			diags = append(diags, Diagnostic{
				Column:  g.Column,
				Message: "no cast for group column; values pass through as-is",
			})
		}
		ret.Groups = append(ret.Groups, CompiledGroup{
			Column: g.Column,
			Alias:  alias,
			Cast:   cast,
		})
	}

	return ret, diags, nil
}
