// SPDX-License-Identifier: Apache-2.0

package applier_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/require"

	"github.com/nexusdm/dmengine/pkg/applier"
	"github.com/nexusdm/dmengine/pkg/datamodel"
	"github.com/nexusdm/dmengine/pkg/dialect"
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

func TestApplyCreateModelThenAddField(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn := fakeConn{db: db}

	st := state.New(conn, "")
	require.NoError(t, st.Init(context.Background()))

	a := applier.New(conn, st, "")
	ctx := context.Background()

	res, err := a.Apply(ctx, applier.ApplyInput{
		MigrationID: "m1",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateModel{Model: "Test"},
			&datamodel.CreateField{
				Model: "Test",
				Field: &datamodel.Field{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsID: true},
			},
		},
	})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.NotNil(t, res.Migration)
	require.Equal(t, state.StatusSuccess, res.Migration.Status)

	var count int
	row := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='Test'`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)

	res2, err := a.Apply(ctx, applier.ApplyInput{
		MigrationID: "m2",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateField{
				Model: "Test",
				Field: &datamodel.Field{Name: "myint", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarInt}, Default: &datamodel.Default{Literal: strp("1")}},
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, state.StatusSuccess, res2.Migration.Status)

	_, err = db.Exec(`INSERT INTO Test (id) VALUES ('test')`)
	require.NoError(t, err)
	var myint int
	require.NoError(t, db.QueryRow(`SELECT myint FROM Test WHERE id = 'test'`).Scan(&myint))
	require.Equal(t, 1, myint)
}

func TestApplyIsIdempotentOnSecondCall(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn := fakeConn{db: db}

	st := state.New(conn, "")
	require.NoError(t, st.Init(context.Background()))
	a := applier.New(conn, st, "")
	ctx := context.Background()

	steps := datamodel.MigrationSteps{
		&datamodel.CreateModel{Model: "Test"},
		&datamodel.CreateField{Model: "Test", Field: &datamodel.Field{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsID: true}},
	}

	_, err = a.Apply(ctx, applier.ApplyInput{MigrationID: "m1", Steps: steps})
	require.NoError(t, err)

	res2, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "m1-repeat", Steps: nil})
	require.NoError(t, err)
	require.Empty(t, res2.SQLSteps)
}

// TestApplyCoalescesWatchMigrations reproduces the watch-0001, watch-0002,
// final scenario: the datamodel a "final" submission converges on must be
// bit-equal to submitting the same steps directly against an empty
// baseline, since coalescingBase discards every intervening watch record
// and rebuilds from the last non-watch datamodel.
func TestApplyCoalescesWatchMigrations(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn := fakeConn{db: db}

	st := state.New(conn, "")
	require.NoError(t, st.Init(context.Background()))
	a := applier.New(conn, st, "")
	ctx := context.Background()

	idField := func() *datamodel.Field {
		return &datamodel.Field{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsID: true}
	}

	_, err = a.Apply(ctx, applier.ApplyInput{
		MigrationID: "watch-0001",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateModel{Model: "Test"},
			&datamodel.CreateField{Model: "Test", Field: idField()},
		},
	})
	require.NoError(t, err)

	// Each watch submission restates the full delta from the last stable
	// (non-watch) point, not an incremental delta from the prior watch —
	// there is no prior non-watch migration yet, so watch-0002 still
	// starts from an empty baseline.
	_, err = a.Apply(ctx, applier.ApplyInput{
		MigrationID: "watch-0002",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateModel{Model: "Test"},
			&datamodel.CreateField{Model: "Test", Field: idField()},
			&datamodel.CreateField{Model: "Test", Field: &datamodel.Field{Name: "foo", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, Default: &datamodel.Default{Literal: strp("x")}}},
		},
	})
	require.NoError(t, err)

	finalSteps := datamodel.MigrationSteps{
		&datamodel.CreateModel{Model: "Test"},
		&datamodel.CreateField{Model: "Test", Field: idField()},
		&datamodel.CreateField{Model: "Test", Field: &datamodel.Field{Name: "bar", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, Default: &datamodel.Default{Literal: strp("y")}}},
	}

	watched, err := a.Apply(ctx, applier.ApplyInput{MigrationID: "final", Steps: finalSteps})
	require.NoError(t, err)
	require.Equal(t, state.StatusSuccess, watched.Migration.Status)

	// A fresh, watch-free run submitting the same final steps against an
	// empty baseline must converge on the bit-equal datamodel.
	db2, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db2.Close() })
	conn2 := fakeConn{db: db2}
	st2 := state.New(conn2, "")
	require.NoError(t, st2.Init(context.Background()))
	a2 := applier.New(conn2, st2, "")

	direct, err := a2.Apply(ctx, applier.ApplyInput{MigrationID: "final", Steps: finalSteps})
	require.NoError(t, err)
	require.Equal(t, state.StatusSuccess, direct.Migration.Status)

	watchedJSON, err := json.Marshal(watched.Datamodel)
	require.NoError(t, err)
	directJSON, err := json.Marshal(direct.Datamodel)
	require.NoError(t, err)
	require.JSONEq(t, string(directJSON), string(watchedJSON), "coalesced datamodel must be bit-equal to a watch-free run of the same final steps")
}

// TestApplyEliminatesWatchOnlySchemaChanges confirms watch-mode coalescing
// is not just a datamodel-bookkeeping exercise: a column only ever
// introduced by a watch migration and never carried forward by the
// following non-watch submission must be dropped from the live schema, not
// left behind as orphaned state.
func TestApplyEliminatesWatchOnlySchemaChanges(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	conn := fakeConn{db: db}

	st := state.New(conn, "")
	require.NoError(t, st.Init(context.Background()))
	a := applier.New(conn, st, "")
	ctx := context.Background()

	idField := &datamodel.Field{Name: "id", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, IsID: true}

	_, err = a.Apply(ctx, applier.ApplyInput{
		MigrationID: "watch-0001",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateModel{Model: "Test"},
			&datamodel.CreateField{Model: "Test", Field: idField},
			&datamodel.CreateField{Model: "Test", Field: &datamodel.Field{Name: "scratch", Arity: datamodel.ArityRequired, Type: datamodel.FieldType{Scalar: datamodel.ScalarString}, Default: &datamodel.Default{Literal: strp("x")}}},
		},
	})
	require.NoError(t, err)

	var before int
	row := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('Test') WHERE name = 'scratch'`)
	require.NoError(t, row.Scan(&before))
	require.Equal(t, 1, before, "watch migration should have created the column physically")

	res, err := a.Apply(ctx, applier.ApplyInput{
		MigrationID: "final",
		Steps: datamodel.MigrationSteps{
			&datamodel.CreateModel{Model: "Test"},
			&datamodel.CreateField{Model: "Test", Field: idField},
		},
	})
	require.NoError(t, err)
	require.Equal(t, state.StatusSuccess, res.Migration.Status)

	var after int
	row = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('Test') WHERE name = 'scratch'`)
	require.NoError(t, row.Scan(&after))
	require.Equal(t, 0, after, "watch-only column must be eliminated once superseded by a non-watch migration")
}

func strp(s string) *string { return &s }
