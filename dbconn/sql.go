package dbconn

import (
	"fmt"
	"strings"

	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// dialect holds the per-backend translation tables used to render a
// CompiledQuery into native SQL. The plan itself stays backend-neutral;
// everything dialect-specific is confined to this table.
type dialect struct {
	name        string
	quoteIdent  func(string) string
	placeholder func(n int) string
	casts       map[string]string
}

var aggregateFuncs = map[querybuilder.AggregateKind]string{
	querybuilder.AggCount: "COUNT",
	querybuilder.AggSum:   "SUM",
	querybuilder.AggAvg:   "AVG",
	querybuilder.AggMin:   "MIN",
	querybuilder.AggMax:   "MAX",
}

var filterOps = map[querybuilder.FilterKind]string{
	querybuilder.FilterGreaterThan: ">",
	querybuilder.FilterLessThan:    "<",
	querybuilder.FilterEqualTo:     "=",
}

var pgDialect = dialect{
	name:       "postgres",
	quoteIdent: func(s string) string { return `"` + strings.ReplaceAll(s, `"`, `""`) + `"` },
	placeholder: func(n int) string {
		return fmt.Sprintf("$%d", n)
	},
	casts: map[string]string{
		querybuilder.CastDate: "date",
		"string":              "text",
		"int64":               "bigint",
		"float64":             "double precision",
	},
}

var mysqlDialect = dialect{
	name:       "mysql",
	quoteIdent: func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
	placeholder: func(n int) string {
		return "?"
	},
	casts: map[string]string{
		querybuilder.CastDate: "DATE",
		"string":              "CHAR",
		"int64":               "SIGNED",
		"float64":             "DOUBLE",
	},
}

func (d dialect) castExpr(expr, cast string) (string, error) {
	typ, ok := d.casts[cast]
	if !ok {
		return "", verrors.UnsupportedCastf("cast %q not expressible in %s", cast, d.name)
	}
	return fmt.Sprintf("CAST(%s AS %s)", expr, typ), nil
}

// renderQuery renders q into d's SQL. Filter values are appended to args and
// referenced by placeholder so the numbering stays correct when multiple
// rendered queries share one statement.
func renderQuery(
	d dialect, q *querybuilder.CompiledQuery, args *[]interface{},
) (string, error) {
	var exprs []string
	for _, g := range q.Groups {
		expr := d.quoteIdent(g.Column)
		if g.Cast != "" {
			var err error
			if expr, err = d.castExpr(expr, g.Cast); err != nil {
				return "", err
			}
		}
		exprs = append(exprs, fmt.Sprintf("%s AS %s", expr, d.quoteIdent(g.Alias)))
	}
	for _, a := range q.Aggregates {
		fn, ok := aggregateFuncs[a.Kind]
		if !ok {
			return "", verrors.Configf("aggregate kind %q has no %s translation", a.Kind, d.name)
		}
		inner := "*"
		if a.Column != "" {
			inner = d.quoteIdent(a.Column)
		}
		exprs = append(exprs, fmt.Sprintf("%s(%s) AS %s", fn, inner, d.quoteIdent(a.Alias)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(d.quoteIdent(q.Table.Schema))
	sb.WriteString(".")
	sb.WriteString(d.quoteIdent(q.Table.Table))

	if len(q.Filters) > 0 {
		var conds []string
		for _, f := range q.Filters {
			if f.Kind == querybuilder.FilterCustom {
				conds = append(conds, "("+f.Custom+")")
				continue
			}
			op, ok := filterOps[f.Kind]
			if !ok {
				return "", verrors.Configf("filter kind %q has no %s translation", f.Kind, d.name)
			}
			left := d.quoteIdent(f.Column)
			if f.CastColumnToDate {
				var err error
				if left, err = d.castExpr(left, querybuilder.CastDate); err != nil {
					return "", err
				}
			}
			*args = append(*args, f.Value)
			conds = append(conds, fmt.Sprintf("%s %s %s", left, op, d.placeholder(len(*args))))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if len(q.Groups) > 0 {
		ordinals := make([]string, len(q.Groups))
		for i := range q.Groups {
			ordinals[i] = fmt.Sprintf("%d", i+1)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(ordinals, ", "))
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(ordinals, ", "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), nil
}

// renderJoinAndDiff renders a full outer join of the two rendered queries on
// joinKeys, projecting each side's aggregate aliases under SourcePrefix and
// TargetPrefix. Only dialects with FULL OUTER JOIN support can use this.
func renderJoinAndDiff(
	d dialect,
	source, target *querybuilder.CompiledQuery,
	joinKeys []string,
	args *[]interface{},
) (string, error) {
	srcSQL, err := renderQuery(d, source, args)
	if err != nil {
		return "", err
	}
	tgtSQL, err := renderQuery(d, target, args)
	if err != nil {
		return "", err
	}

	var exprs []string
	for _, k := range joinKeys {
		exprs = append(exprs, fmt.Sprintf(
			"COALESCE(src.%[1]s, tgt.%[1]s) AS %[1]s", d.quoteIdent(k)))
	}
	for _, a := range source.Aggregates {
		exprs = append(exprs, fmt.Sprintf(
			"src.%s AS %s", d.quoteIdent(a.Alias), d.quoteIdent(SourcePrefix+a.Alias)))
	}
	for _, a := range target.Aggregates {
		exprs = append(exprs, fmt.Sprintf(
			"tgt.%s AS %s", d.quoteIdent(a.Alias), d.quoteIdent(TargetPrefix+a.Alias)))
	}

	var conds []string
	for _, k := range joinKeys {
		conds = append(conds, fmt.Sprintf("src.%[1]s = tgt.%[1]s", d.quoteIdent(k)))
	}

	return fmt.Sprintf(
		"WITH src AS (%s), tgt AS (%s) SELECT %s FROM src FULL OUTER JOIN tgt ON %s",
		srcSQL,
		tgtSQL,
		strings.Join(exprs, ", "),
		strings.Join(conds, " AND "),
	), nil
}
