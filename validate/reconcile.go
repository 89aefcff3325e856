package validate

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/validata-io/validata/dbconn"
	"github.com/validata-io/validata/dbtable"
)

// Verdict classifies one reconciled group/aggregate pair.
type Verdict string

const (
	VerdictMatch      Verdict = "match"
	VerdictMismatch   Verdict = "mismatch"
	VerdictSourceOnly Verdict = "source-only"
	VerdictTargetOnly Verdict = "target-only"
)

// RunMetadata identifies the validation run a Result belongs to.
type RunMetadata struct {
	RunID     uuid.UUID
	Kind      Kind
	Source    dbtable.Name
	Target    dbtable.Name
	StartedAt time.Time
}

// GroupKey is one group-by column value of a reconciled group, rendered as a
// string so keys compare identically across backends.
type GroupKey struct {
	Alias string
	Value string
}

// Result is one reconciled verdict: one group, one aggregate alias.
type Result struct {
	RunMetadata

	GroupKeys []GroupKey
	Alias     string

	// SourceValue/TargetValue are nil when the group is absent on that side.
	SourceValue interface{}
	TargetValue interface{}

	// Difference is target minus source as an exact decimal string, set only
	// when both sides are present and numeric. PctDifference is the relative
	// difference against the source value, unset when the source is zero.
	Difference    string
	PctDifference string

	Verdict Verdict
}

var decCtx = apd.BaseContext.WithPrecision(32)

// Reconcile aligns the two result sets by group-key tuple and classifies
// each aligned pair per aggregate alias. The key tuple is empty for
// whole-table aggregates, collapsing both sides to a single pseudo-group.
// Output order is the source side's first-seen group order, then any
// target-only groups in target order.
func Reconcile(
	source, target []dbconn.Row,
	groupAliases, aggAliases []string,
	threshold float64,
	meta RunMetadata,
) []Result {
	thresholdDec := new(apd.Decimal)
	if _, err := thresholdDec.SetFloat64(threshold); err != nil {
		thresholdDec.SetInt64(0)
	}

	keyOf := func(row dbconn.Row) string {
		parts := make([]string, len(groupAliases))
		for i, alias := range groupAliases {
			parts[i] = RenderValue(row[alias])
		}
		return strings.Join(parts, "\x1f")
	}

	targetByKey := make(map[string]dbconn.Row, len(target))
	targetOrder := make([]string, 0, len(target))
	for _, row := range target {
		key := keyOf(row)
		if _, ok := targetByKey[key]; !ok {
			targetOrder = append(targetOrder, key)
		}
		targetByKey[key] = row
	}

	var results []Result
	consumed := make(map[string]struct{}, len(source))
	for _, srcRow := range source {
		key := keyOf(srcRow)
		if _, ok := consumed[key]; ok {
			continue
		}
		consumed[key] = struct{}{}

		keys := groupKeys(srcRow, groupAliases)
		tgtRow, ok := targetByKey[key]
		if !ok {
			for _, alias := range aggAliases {
				results = append(results, Result{
					RunMetadata: meta,
					GroupKeys:   keys,
					Alias:       alias,
					SourceValue: srcRow[alias],
					Verdict:     VerdictSourceOnly,
				})
			}
			continue
		}
		for _, alias := range aggAliases {
			results = append(results, compareValues(meta, keys, alias, srcRow[alias], tgtRow[alias], thresholdDec))
		}
	}

	for _, key := range targetOrder {
		if _, ok := consumed[key]; ok {
			continue
		}
		tgtRow := targetByKey[key]
		keys := groupKeys(tgtRow, groupAliases)
		for _, alias := range aggAliases {
			results = append(results, Result{
				RunMetadata: meta,
				GroupKeys:   keys,
				Alias:       alias,
				TargetValue: tgtRow[alias],
				Verdict:     VerdictTargetOnly,
			})
		}
	}
	return results
}

func groupKeys(row dbconn.Row, groupAliases []string) []GroupKey {
	keys := make([]GroupKey, len(groupAliases))
	for i, alias := range groupAliases {
		keys[i] = GroupKey{Alias: alias, Value: RenderValue(row[alias])}
	}
	return keys
}

func compareValues(
	meta RunMetadata,
	keys []GroupKey,
	alias string,
	srcVal, tgtVal interface{},
	threshold *apd.Decimal,
) Result {
	ret := Result{
		RunMetadata: meta,
		GroupKeys:   keys,
		Alias:       alias,
		SourceValue: srcVal,
		TargetValue: tgtVal,
	}

	src, srcNumeric := toDecimal(srcVal)
	tgt, tgtNumeric := toDecimal(tgtVal)
	if !srcNumeric || !tgtNumeric {
		if RenderValue(srcVal) == RenderValue(tgtVal) {
			ret.Verdict = VerdictMatch
		} else {
			ret.Verdict = VerdictMismatch
		}
		return ret
	}

	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, tgt, src); err != nil {
		ret.Verdict = VerdictMismatch
		return ret
	}
	// Reduce drops trailing zeros so 0.0 and 5.00 render as 0 and 5.
	diff.Reduce(diff)
	ret.Difference = diff.Text('f')

	absDiff := new(apd.Decimal)
	if _, err := decCtx.Abs(absDiff, diff); err == nil && absDiff.Cmp(threshold) <= 0 {
		ret.Verdict = VerdictMatch
	} else {
		ret.Verdict = VerdictMismatch
	}

	if !src.IsZero() {
		pct := new(apd.Decimal)
		if _, err := decCtx.Quo(pct, diff, src); err == nil {
			if _, err := decCtx.Mul(pct, pct, apd.New(100, 0)); err == nil {
				pct.Reduce(pct)
				ret.PctDifference = pct.Text('f')
			}
		}
	}
	return ret
}

func toDecimal(v interface{}) (*apd.Decimal, bool) {
	if v == nil {
		return nil, false
	}
	d := new(apd.Decimal)
	if _, _, err := d.SetString(RenderValue(v)); err != nil {
		return nil, false
	}
	return d, true
}

// RenderValue renders a backend value as a comparable string. Backends hand
// back different concrete types for the same logical value (int64 vs
// pgtype.Numeric vs []byte), so everything is reduced to text before keys
// and non-numeric values are compared.
func RenderValue(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	case driver.Valuer:
		if dv, err := v.Value(); err == nil {
			return RenderValue(dv)
		}
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprintf("%v", v)
}
