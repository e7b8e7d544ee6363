// SPDX-License-Identifier: Apache-2.0

// Package enginetest exercises the full pipeline — datamodel calculation,
// schema calculation, diffing, rendering, destructive checking, and
// application — end to end, the way pgroll's integration tests exercise a
// live Postgres container rather than any single package in isolation.
package enginetest_test

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/applier"
	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/describer"
	"github.com/nexusdm/dmengine/pkg/dialect"
	"github.com/nexusdm/dmengine/pkg/sqlcalc"
	"github.com/nexusdm/dmengine/pkg/state"
)

type fakeConn struct{ db *sql.DB }

func (f fakeConn) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return f.db.ExecContext(ctx, q, args...)
}
func (f fakeConn) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return f.db.QueryContext(ctx, q, args...)
}
func (f fakeConn) WithRetryableTransaction(ctx context.Context, fn func(context.Context, *sql.Tx) error) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
func (f fakeConn) Dialect() dialect.Dialect { return dialect.Sqlite }
func (f fakeConn) Close() error             { return f.db.Close() }

func openTestDB(t *testing.T) fakeConn {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return fakeConn{db: db}
}

// TestRoundTripSingleModel applies a one-model datamodel through the full
// pipeline and checks that its table is present both in the live, described
// schema and in the schema calculated for the datamodel.
func TestRoundTripSingleModel(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	st := state.New(conn, "")
	require.NoError(t, st.Init(ctx))
	a := applier.New(conn, st, "")

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Author",
				Fields: []*datamodel.Field{
					{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, IsID: true},
					{Name: "name", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}},
				},
			},
		},
	}

	steps := datamodel.InferSteps(datamodel.New(), dm)
	require.NotEmpty(t, steps)

	res, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "m1", Steps: steps})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, state.StatusSuccess, res.Migration.Status)

	liveSchema, err := describer.Describe(ctx, conn, "")
	require.NoError(t, err)
	expectedSchema, err := sqlcalc.Calculate(dm)
	require.NoError(t, err)

	require.NotNil(t, liveSchema.GetTable("Author"))
	require.NotNil(t, expectedSchema.GetTable("Author"))
}

// TestIdempotentSecondApplyProducesNoSteps grounds §8's idempotence
// invariant against the full pipeline, not just the applier in isolation.
func TestIdempotentSecondApplyProducesNoSteps(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	st := state.New(conn, "")
	require.NoError(t, st.Init(ctx))
	a := applier.New(conn, st, "")

	dm := &datamodel.Datamodel{
		Models: []*datamodel.Model{
			{
				Name: "Widget",
				Fields: []*datamodel.Field{
					{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, IsID: true},
					{Name: "count", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, Default: &datamodel.Default{Literal: strPtr("0")}},
				},
			},
		},
	}
	steps := datamodel.InferSteps(datamodel.New(), dm)

	_, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "m1", Steps: steps})
	require.NoError(t, err)

	res2, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "m2", Steps: nil})
	require.NoError(t, err)
	require.Empty(t, res2.SQLSteps)
}

func strPtr(s string) *string { return &s }
