// Package dbconn defines the backend client capability the validation engine
// drives: listing a table's column catalog and running compiled aggregation
// queries. Each adapter owns the translation from the backend-neutral
// CompiledQuery to its native dialect.
package dbconn

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
)

type ID string

// OrderedConns is the source and target connection pair, in that order.
type OrderedConns [2]Conn

func (c OrderedConns) Source() Conn { return c[0] }
func (c OrderedConns) Target() Conn { return c[1] }

// Row is one result row: alias -> value. Column order is carried by the
// CompiledQuery alias list, not by the map.
type Row map[string]interface{}

// Joined-row aliases produced by JoinAndDiff. Key aliases appear bare;
// each aggregate alias appears once per side with these prefixes.
const (
	SourcePrefix = "source__"
	TargetPrefix = "target__"
)

// Conn is one backend client. Implementations are not safe for concurrent
// use unless documented otherwise; callers running validations in parallel
// must Clone one handle per unit of work.
type Conn interface {
	ID() ID
	Dialect() string
	ConnStr() string

	// ListColumns returns the column catalog of table, with declared types
	// normalized to lower case.
	ListColumns(ctx context.Context, table dbtable.Name) (dbtable.Columns, error)

	// Run executes a compiled aggregation query and returns one Row per
	// result group.
	Run(ctx context.Context, q *querybuilder.CompiledQuery) ([]Row, error)

	// JoinAndDiff runs both compiled queries on this backend and full outer
	// joins them on joinKeys, returning joined rows with SourcePrefix/
	// TargetPrefix aliases. Adapters without native join support return an
	// error marked verrors.ErrUnsupportedOperation.
	JoinAndDiff(
		ctx context.Context,
		source, target *querybuilder.CompiledQuery,
		joinKeys []string,
	) ([]Row, error)

	// Clone creates a new Conn with the same underlying connection arguments.
	Clone(ctx context.Context) (Conn, error)
	Close(ctx context.Context) error
}

// Connect establishes a Conn from a connection string, dispatching on the
// URL scheme.
func Connect(ctx context.Context, preferredID ID, connStr string) (Conn, error) {
	if len(connStr) == 0 {
		return nil, errors.Newf("empty connection string")
	}
	scheme, _, found := strings.Cut(connStr, "://")
	if !found {
		return nil, errors.Newf("connection string %q missing a scheme", connStr)
	}
	switch {
	case strings.Contains(scheme, "postgres"):
		return ConnectPG(ctx, preferredID, connStr)
	case strings.Contains(scheme, "mysql"):
		return ConnectMySQL(ctx, preferredID, connStr)
	}
	return nil, errors.Newf("unrecognised scheme %s from %s", scheme, connStr)
}
