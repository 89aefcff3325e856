package dbconn

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/validata-io/validata/dbtable"
	"github.com/validata-io/validata/querybuilder"
	"github.com/validata-io/validata/verrors"
)

// FakeConn is an in-memory backend used by tests. It serves seeded catalogs
// and result rows instead of compiling SQL.
type FakeConn struct {
	id ID

	Catalog map[dbtable.Name]dbtable.Columns
	// Results are returned by Run for the query's table, regardless of the
	// plan shape.
	Results map[dbtable.Name][]Row
	// Joined is returned by JoinAndDiff. A nil slice with JoinSupported
	// false makes the fake behave like an adapter without join support.
	Joined        []Row
	JoinSupported bool

	RunErr error
}

var _ Conn = (*FakeConn)(nil)

func MakeFakeConn(id ID) *FakeConn {
	return &FakeConn{
		id:      id,
		Catalog: map[dbtable.Name]dbtable.Columns{},
		Results: map[dbtable.Name][]Row{},
	}
}

func (f *FakeConn) ID() ID          { return f.id }
func (f *FakeConn) Dialect() string { return "fake" }
func (f *FakeConn) ConnStr() string { return "fake://" }

func (f *FakeConn) Clone(ctx context.Context) (Conn, error) {
	return f, nil
}

func (f *FakeConn) Close(ctx context.Context) error {
	return nil
}

func (f *FakeConn) ListColumns(
	ctx context.Context, table dbtable.Name,
) (dbtable.Columns, error) {
	cols, ok := f.Catalog[table]
	if !ok {
		return nil, errors.Newf("table %s has no columns or does not exist", table)
	}
	return cols, nil
}

func (f *FakeConn) Run(
	ctx context.Context, q *querybuilder.CompiledQuery,
) ([]Row, error) {
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Results[q.Table], nil
}

func (f *FakeConn) JoinAndDiff(
	ctx context.Context,
	source, target *querybuilder.CompiledQuery,
	joinKeys []string,
) ([]Row, error) {
	if f.RunErr != nil {
		return nil, f.RunErr
	}
	if !f.JoinSupported {
		return nil, errors.Mark(
			errors.Newf("fake backend %s has join support disabled", f.id),
			verrors.ErrUnsupportedOperation,
		)
	}
	return f.Joined, nil
}
