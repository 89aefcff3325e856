// Package querybuilder assembles backend-neutral aggregation query plans.
// A Plan describes what to compute (aggregates, filters, group-by columns)
// without committing to any backend's expression language; Compile binds the
// plan to a live table catalog and yields an inert CompiledQuery that a
// backend adapter renders and runs.
package querybuilder

import "github.com/validata-io/validata/verrors"

// AggregateKind enumerates the supported aggregate operations.
type AggregateKind string

const (
	AggCount AggregateKind = "count"
	AggSum   AggregateKind = "sum"
	AggAvg   AggregateKind = "avg"
	AggMin   AggregateKind = "min"
	AggMax   AggregateKind = "max"
)

func (k AggregateKind) Valid() bool {
	switch k {
	case AggCount, AggSum, AggAvg, AggMin, AggMax:
		return true
	}
	return false
}

// AggregateField is one aggregate to compute. An empty Column means a
// whole-table aggregate, which is only valid for count.
type AggregateField struct {
	Kind   AggregateKind
	Column string
	Alias  string
}

func Count(column, alias string) AggregateField {
	return AggregateField{Kind: AggCount, Column: column, Alias: alias}
}

func Sum(column, alias string) AggregateField {
	return AggregateField{Kind: AggSum, Column: column, Alias: alias}
}

func Avg(column, alias string) AggregateField {
	return AggregateField{Kind: AggAvg, Column: column, Alias: alias}
}

func Min(column, alias string) AggregateField {
	return AggregateField{Kind: AggMin, Column: column, Alias: alias}
}

func Max(column, alias string) AggregateField {
	return AggregateField{Kind: AggMax, Column: column, Alias: alias}
}

func (f AggregateField) validate() error {
	if !f.Kind.Valid() {
		return verrors.Configf("unknown aggregate kind %q", f.Kind)
	}
	if f.Alias == "" {
		return verrors.Configf("aggregate %q requires an alias", f.Kind)
	}
	if f.Column == "" && f.Kind != AggCount {
		return verrors.Configf("aggregate %q requires a column", f.Kind)
	}
	return nil
}

// FilterKind enumerates the supported filter comparisons.
type FilterKind string

const (
	FilterGreaterThan FilterKind = "gt"
	FilterLessThan    FilterKind = "lt"
	FilterEqualTo     FilterKind = "eq"
	// FilterCustom passes an opaque backend predicate through verbatim.
	FilterCustom FilterKind = "custom"
)

// FilterField is one predicate. Either the structured operands
// (Kind/Column/Value) or the Custom string is set, never both.
type FilterField struct {
	Kind   FilterKind
	Column string
	Value  interface{}
	Custom string
}

func GreaterThan(column string, value interface{}) FilterField {
	return FilterField{Kind: FilterGreaterThan, Column: column, Value: value}
}

func LessThan(column string, value interface{}) FilterField {
	return FilterField{Kind: FilterLessThan, Column: column, Value: value}
}

func EqualTo(column string, value interface{}) FilterField {
	return FilterField{Kind: FilterEqualTo, Column: column, Value: value}
}

func Custom(expr string) FilterField {
	return FilterField{Kind: FilterCustom, Custom: expr}
}

func (f FilterField) validate() error {
	if f.Kind == FilterCustom {
		if f.Custom == "" {
			return verrors.Configf("custom filter requires a predicate string")
		}
		if f.Column != "" || f.Value != nil {
			return verrors.Configf("custom filter cannot also carry structured operands")
		}
		return nil
	}
	switch f.Kind {
	case FilterGreaterThan, FilterLessThan, FilterEqualTo:
	default:
		return verrors.Configf("unknown filter kind %q", f.Kind)
	}
	if f.Custom != "" {
		return verrors.Configf("structured filter cannot also carry a custom predicate")
	}
	if f.Column == "" {
		return verrors.Configf("filter %q requires a column", f.Kind)
	}
	return nil
}

// GroupedField is one group-by / join-key column. Alias defaults to the
// column name. Temporal columns are truncated to date granularity unless an
// explicit Cast overrides it; cross-backend timestamp precision is not
// comparable.
type GroupedField struct {
	Column string
	Alias  string
	Cast   string
}

func Group(column string) GroupedField {
	return GroupedField{Column: column}
}

func GroupAs(column, alias string) GroupedField {
	return GroupedField{Column: column, Alias: alias}
}
