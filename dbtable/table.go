// Package dbtable contains value types describing tables and their column
// catalogs, shared by the query plan builder and the backend adapters.
package dbtable

import (
	"fmt"
	"strings"
)

// Name identifies a table within a schema.
type Name struct {
	Schema string
	Table  string
}

func (n Name) String() string {
	return fmt.Sprintf("%s.%s", n.Schema, n.Table)
}

func (n Name) Compare(o Name) int {
	if c := strings.Compare(strings.ToLower(n.Schema), strings.ToLower(o.Schema)); c != 0 {
		return c
	}
	return strings.Compare(strings.ToLower(n.Table), strings.ToLower(o.Table))
}

func (n Name) Less(o Name) bool {
	return n.Compare(o) < 0
}

// Column is one entry of a table's column catalog. Type is the declared type
// as reported by the backend, normalized to lower case by the adapters.
type Column struct {
	Name string
	Type string
}

type Columns []Column

func (c Columns) Names() []string {
	names := make([]string, len(c))
	for i, col := range c {
		names[i] = col.Name
	}
	return names
}

// Lookup finds a column by name. Column names are matched case-sensitively;
// backends that fold identifiers are expected to report folded names.
func (c Columns) Lookup(name string) (Column, bool) {
	for _, col := range c {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

var numericTypes = map[string]struct{}{
	"int16":            {},
	"int32":            {},
	"int64":            {},
	"float32":          {},
	"float64":          {},
	"integer":          {},
	"int":              {},
	"bigint":           {},
	"smallint":         {},
	"tinyint":          {},
	"mediumint":        {},
	"numeric":          {},
	"decimal":          {},
	"real":             {},
	"double precision": {},
	"double":           {},
	"float":            {},
}

var temporalTypes = map[string]struct{}{
	"timestamp":                   {},
	"timestamptz":                 {},
	"timestamp with time zone":    {},
	"timestamp without time zone": {},
	"datetime":                    {},
	"date":                        {},
}

// IsNumericType reports whether the declared type can be summed or averaged.
func IsNumericType(typ string) bool {
	_, ok := numericTypes[strings.ToLower(typ)]
	return ok
}

// IsTemporalType reports whether the declared type carries a time component
// whose precision is not comparable across backends.
func IsTemporalType(typ string) bool {
	_, ok := temporalTypes[strings.ToLower(typ)]
	return ok
}
